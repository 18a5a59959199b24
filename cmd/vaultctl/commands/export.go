package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/resolve"
	"github.com/systmms/vaultctl/internal/secure"
)

// exportDoc is type -> scope -> entries. Entries keep the store's order.
type exportDoc map[resolve.ScopeType]map[string]*orderedmap.OrderedMap[string, string]

func NewExportCommand(cfg *config.Config) *cobra.Command {
	var (
		typ        string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "export [--type lxc|docker] [--output backup.json]",
		Short: "Dump every scope as JSON",
		Long: `Read every scope and print them as one JSON document keyed by scope type
and scope id. Without --type both lxc and docker scopes are exported. With
--output the document is written as a new 0600 file.

Examples:
  vaultctl export --output vault-backup.json
  vaultctl export --type docker | jq '.docker.grafana'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := []resolve.ScopeType{resolve.ScopeLXC, resolve.ScopeDocker}
			if typ != "" {
				t, err := resolve.ParseScopeType(typ)
				if err != nil {
					return err
				}
				types = []resolve.ScopeType{t}
			}

			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			doc := exportDoc{}
			total := 0
			for _, t := range types {
				keys, err := s.resolver.List(cmd.Context(), t)
				if err != nil {
					return err
				}
				scopes := make(map[string]*orderedmap.OrderedMap[string, string], len(keys))
				for _, key := range keys {
					if strings.HasSuffix(key, "/") {
						cfg.Logger.Debug("Skipping directory %s", key)
						continue
					}
					set, err := s.resolver.Resolve(cmd.Context(), key, t)
					if errors.Is(err, vcerrors.ErrNotFound) {
						// listed but soft-deleted
						cfg.Logger.Warn("Skipping deleted scope %s/%s", t, key)
						continue
					}
					if err != nil {
						return err
					}
					scopes[key] = set.Ordered()
					total++
				}
				doc[t] = scopes
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding export: %w", err)
			}
			data = append(data, '\n')

			if outputPath == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := secure.WriteFile(outputPath, data); err != nil {
				return err
			}
			cfg.Logger.Info("Exported %d scopes to %s", total, outputPath)
			cfg.Logger.Warn("File contains secrets - store it like the Vault backup it is")
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "Scope type: lxc or docker (default both)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default stdout)")
	return cmd
}
