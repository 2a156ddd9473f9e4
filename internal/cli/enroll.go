package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
)

// storeOpener returns the enrollment store and a func releasing it.
type storeOpener func(ctx context.Context, cfg *config.Config) (service.EnrollmentRepositoryInterface, func(), error)

func openPostgresStore(ctx context.Context, cfg *config.Config) (service.EnrollmentRepositoryInterface, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, domain.ErrValidationFailed.WithError(errors.New("DATABASE_URL is required to enroll"))
	}
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, nil, err
	}
	return repository.NewEnrollmentRepository(pool), pool.Close, nil
}

func newEnrollCommand(a *app) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "enroll <employee-id> <image|fingerprint.json>",
		Short: "Enroll an employee from a photo or a replayed fingerprint",
		Long: `Stores the fingerprint of an employee in the enrollment database.
The second argument is either a photo, which goes through the same checks as
the HTTP enrollment, or a fingerprint file written by "facectl replay --out".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.enroll(cmd.Context(), args[0], args[1], replace)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), e)
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "overwrite an existing enrollment of the same strategy")
	return cmd
}

func (a *app) enroll(ctx context.Context, employeeID, path string, replace bool) (*domain.Enrollment, error) {
	set, err := a.pipelines()
	if err != nil {
		return nil, err
	}

	var (
		fp    *domain.Fingerprint
		score int
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if fp, err = readFingerprint(path); err != nil {
			return nil, err
		}
	} else {
		f, err := readFrame(path)
		if err != nil {
			return nil, err
		}
		p, err := set.Get(a.strategy)
		if err != nil {
			return nil, err
		}
		res, err := p.Fingerprint(ctx, f)
		if err != nil {
			return nil, err
		}
		fp, score = res.Fingerprint, res.Quality.Score
	}

	store, release, err := a.openStore(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	defer release()

	svc := service.NewFaceService(store, nil, set, a.matcher()).WithLogger(a.logger)
	return svc.EnrollFingerprint(ctx, employeeID, fp, score, replace, service.SourceCLI)
}
