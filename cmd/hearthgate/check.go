// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package main

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hearthgate/hearthgate/internal/authz"
	"github.com/hearthgate/hearthgate/internal/authz/audit"
	"github.com/hearthgate/hearthgate/internal/authz/store"
	"github.com/hearthgate/hearthgate/internal/logging"
)

// checkFixture is the YAML shape accepted by --grants: a principal, its
// grants, and the message to evaluate.
type checkFixture struct {
	Principal struct {
		ID       string `yaml:"id"`
		Username string `yaml:"username"`
	} `yaml:"principal"`
	Grants []struct {
		PlaceID      string   `yaml:"place_id"`
		PlaceName    string   `yaml:"place_name"`
		AccountID    string   `yaml:"account_id"`
		AccountOwner bool     `yaml:"account_owner"`
		Permissions  []string `yaml:"permissions"`
	} `yaml:"grants"`
	Message struct {
		Type        string         `yaml:"type"`
		PlaceID     string         `yaml:"place_id"`
		Destination string         `yaml:"destination"`
		Actor       string         `yaml:"actor"`
		Attributes  map[string]any `yaml:"attributes"`
	} `yaml:"message"`
}

// NewCheckCmd creates the check subcommand: evaluate one message against a
// principal's grants and print the decision.
func NewCheckCmd() *cobra.Command {
	var (
		grantsFile  string
		entityID    string
		sessionID   string
		messageType string
		destination string
		actor       string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate an authorization decision",
		Long: `Evaluate whether a principal may perform a message, using either a
YAML grant fixture (--grants) or grants loaded from the configured
database (--entity).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.Setup("hearthgate", cmd.Root().Version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

			actx, msg, placeID, err := buildCheckInput(cmd, cfg.Database.URL, grantsFile, entityID, sessionID, messageType, destination, actor)
			if err != nil {
				return err
			}

			algorithm, err := authz.ParseAlgorithm(cfg.Authz.Algorithm)
			if err != nil {
				return err
			}
			authorizer, err := authz.NewAuthorizer(algorithm, authz.Options{
				Metrics:            authz.NewUnregisteredMetrics(),
				Logger:             logger,
				Audit:              audit.NewLogger(audit.Mode(cfg.Authz.AuditMode), logger),
				RequirePlaceHeader: cfg.Authz.RequirePlaceHeader,
				EnforceSelfCheck:   cfg.Authz.EnforceSelfCheck,
			})
			if err != nil {
				return err
			}

			allowed, err := authorizer.Authorize(cmd.Context(), actx, placeID, msg)
			if err != nil {
				return err
			}
			if allowed {
				cmd.Printf("ALLOW %s for %s\n", msg.Type, actx.SubjectString())
				return nil
			}
			cmd.Printf("DENY %s for %s\n", msg.Type, actx.SubjectString())
			return authz.NewUnauthorizedError(actx.SubjectString(), msg.Type)
		},
	}

	cmd.Flags().StringVar(&grantsFile, "grants", "", "YAML grant fixture path")
	cmd.Flags().StringVar(&entityID, "entity", "", "principal entity id (loads grants from the database)")
	cmd.Flags().StringVar(&sessionID, "place", "", "session place id")
	cmd.Flags().StringVar(&messageType, "type", "", "message type to evaluate")
	cmd.Flags().StringVar(&destination, "destination", "", "destination address (group:namespace:id)")
	cmd.Flags().StringVar(&actor, "actor", "", "actor address (group:namespace:id)")

	return cmd
}

func buildCheckInput(cmd *cobra.Command, databaseURL, grantsFile, entityID, sessionID, messageType, destination, actor string) (*authz.Context, *authz.Message, uuid.UUID, error) {
	if grantsFile != "" {
		return loadFixture(grantsFile, sessionID)
	}
	if entityID == "" {
		return nil, nil, uuid.Nil, oops.Code("CONFIG_INVALID").
			Errorf("either --grants or --entity is required")
	}
	if messageType == "" {
		return nil, nil, uuid.Nil, oops.Code("CONFIG_INVALID").
			Errorf("--type is required with --entity")
	}
	if databaseURL == "" {
		return nil, nil, uuid.Nil, oops.Code("CONFIG_INVALID").
			Errorf("database.url is required to load grants for --entity")
	}

	principalID, err := uuid.Parse(entityID)
	if err != nil {
		return nil, nil, uuid.Nil, oops.Code("CONFIG_INVALID").With("entity", entityID).Wrap(err)
	}
	placeID, err := parseOptionalUUID(sessionID)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}

	pool, err := pgxpool.New(cmd.Context(), databaseURL)
	if err != nil {
		return nil, nil, uuid.Nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()

	loader := store.NewContextLoader(store.NewPostgresStore(pool))
	actx, err := loader.Load(cmd.Context(), &authz.Principal{ID: principalID}, time.Time{})
	if err != nil {
		return nil, nil, uuid.Nil, err
	}

	msg, err := buildMessage(messageType, sessionID, destination, actor, nil)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}
	return actx, msg, placeID, nil
}

func loadFixture(path, sessionID string) (*authz.Context, *authz.Message, uuid.UUID, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, uuid.Nil, oops.Code("FIXTURE_LOAD_FAILED").With("path", path).Wrap(err)
	}
	var fixture checkFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return nil, nil, uuid.Nil, oops.Code("FIXTURE_PARSE_FAILED").With("path", path).Wrap(err)
	}

	var principal *authz.Principal
	if fixture.Principal.ID != "" {
		id, err := uuid.Parse(fixture.Principal.ID)
		if err != nil {
			return nil, nil, uuid.Nil, oops.Code("FIXTURE_PARSE_FAILED").With("path", path).Wrap(err)
		}
		principal = &authz.Principal{ID: id, Username: fixture.Principal.Username}
	}

	grants := make([]authz.Grant, 0, len(fixture.Grants))
	for _, g := range fixture.Grants {
		placeID, err := uuid.Parse(g.PlaceID)
		if err != nil {
			return nil, nil, uuid.Nil, oops.Code("FIXTURE_PARSE_FAILED").
				With("path", path).With("place_id", g.PlaceID).Wrap(err)
		}
		accountID, err := parseOptionalUUID(g.AccountID)
		if err != nil {
			return nil, nil, uuid.Nil, err
		}
		grant := authz.Grant{
			PlaceID:      placeID,
			PlaceName:    g.PlaceName,
			AccountID:    accountID,
			AccountOwner: g.AccountOwner,
			Permissions:  g.Permissions,
		}
		if principal != nil {
			grant.EntityID = principal.ID
		}
		grants = append(grants, grant)
	}

	actx, err := authz.NewContext(principal, time.Time{}, grants)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}

	// A --place flag overrides the fixture's session place.
	sessionPlace := fixture.Message.PlaceID
	if sessionID != "" {
		sessionPlace = sessionID
	}
	placeID, err := parseOptionalUUID(sessionPlace)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}

	msg, err := buildMessage(fixture.Message.Type, fixture.Message.PlaceID,
		fixture.Message.Destination, fixture.Message.Actor, fixture.Message.Attributes)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}
	return actx, msg, placeID, nil
}

func buildMessage(messageType, placeID, destination, actor string, attributes map[string]any) (*authz.Message, error) {
	if messageType == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("message type is required")
	}
	msg := &authz.Message{
		Type:       messageType,
		PlaceID:    placeID,
		Attributes: attributes,
	}
	if destination != "" {
		addr, err := authz.ParseAddress(destination)
		if err != nil {
			return nil, err
		}
		msg.Destination = addr
	}
	if actor != "" {
		addr, err := authz.ParseAddress(actor)
		if err != nil {
			return nil, err
		}
		msg.Actor = addr
	}
	return msg, nil
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, oops.Code("CONFIG_INVALID").With("id", s).Wrap(err)
	}
	return id, nil
}
