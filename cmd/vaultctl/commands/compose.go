package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systmms/vaultctl/internal/config"
	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/execenv"
	"github.com/systmms/vaultctl/internal/resolve"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/secure"
	"github.com/systmms/vaultctl/internal/template"
)

const defaultComposeEnvFile = ".env.secrets"

var composeFileNames = []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}

// composeFlags are shared by the compose subcommands.
type composeFlags struct {
	file    string
	envFile string
}

func (f *composeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Compose file (default: docker-compose.yml or compose.yml in the current directory)")
	cmd.Flags().StringVar(&f.envFile, "env-file", defaultComposeEnvFile, "Env file written next to the compose file")
}

func NewComposeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Keep a Docker Compose stack's env file in step with Vault",
		Long: `Write the secrets of a docker scope to an env file next to a compose file,
and optionally bring the stack up. Keys are upper-cased with "-" and "."
turned into "_". Services reference the file with env_file: .env.secrets.`,
	}
	cmd.AddCommand(newComposeSyncCommand(cfg), newComposeUpCommand(cfg))
	return cmd
}

func newComposeSyncCommand(cfg *config.Config) *cobra.Command {
	var flags composeFlags

	cmd := &cobra.Command{
		Use:   "sync <service>",
		Short: "Write the service's secrets without restarting anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			composeFile, err := findComposeFile(flags.file)
			if err != nil {
				return err
			}
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			set, err := syncComposeEnv(cmd.Context(), cfg, s, args[0], composeFile, flags.envFile)
			if err != nil {
				return err
			}
			cfg.Logger.Info("Synced %d secrets; restart the stack to apply them", set.Len())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newComposeUpCommand(cfg *config.Config) *cobra.Command {
	var (
		flags      composeFlags
		pull       bool
		build      bool
		noDetach   bool
		composeCmd string
	)

	cmd := &cobra.Command{
		Use:   "up <service>",
		Short: "Sync the service's secrets and run docker compose up",
		Long: `Write the env file like "compose sync", then run "docker compose up -d"
for the compose file. The secrets are also in the environment of docker
compose, so ${VAR} interpolation in the compose file sees them.

Examples:
  vaultctl compose up grafana
  vaultctl compose up grafana --file /opt/grafana/compose.yml --pull`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := strings.Fields(composeCmd)
			if len(base) == 0 {
				return vcerrors.UserError{Message: "--compose-command is empty", Suggestion: `Use "docker compose" or "docker-compose"`}
			}
			composeFile, err := findComposeFile(flags.file)
			if err != nil {
				return err
			}
			s, err := openSession(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			set, err := syncComposeEnv(ctx, cfg, s, args[0], composeFile, flags.envFile)
			if err != nil {
				return err
			}
			cfg.Logger.Info("Synced %d secrets", set.Len())

			sealed, err := secure.Seal(set)
			if err != nil {
				return fmt.Errorf("protecting secrets in memory: %w", err)
			}
			defer sealed.Destroy()

			compose := func(sub ...string) error {
				argv := append(append(append([]string{}, base...), "-f", composeFile), sub...)
				code, err := newExecutor(cfg.Logger).Run(ctx, execenv.RunOptions{
					Entries:    sealed,
					Argv:       argv,
					WorkingDir: filepath.Dir(composeFile),
				})
				if err != nil {
					return err
				}
				if code != 0 {
					return &vcerrors.ExitError{Code: code}
				}
				return nil
			}

			if pull {
				if err := compose("pull"); err != nil {
					return err
				}
			}
			up := []string{"up"}
			if !noDetach {
				up = append(up, "-d")
			}
			if build {
				up = append(up, "--build")
			}
			return compose(up...)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull images first")
	cmd.Flags().BoolVar(&build, "build", false, "Build images before starting")
	cmd.Flags().BoolVar(&noDetach, "no-detach", false, "Stay attached to the containers")
	cmd.Flags().StringVar(&composeCmd, "compose-command", "docker compose", "Compose executable and leading arguments")
	return cmd
}

// syncComposeEnv resolves the docker scope and writes it, with compose
// style key names, next to composeFile.
func syncComposeEnv(ctx context.Context, cfg *config.Config, s *session, service, composeFile, envName string) (*secretset.SecretSet, error) {
	set, err := s.resolver.Resolve(ctx, service, resolve.ScopeDocker)
	if err != nil {
		return nil, err
	}
	env := composeEnv(set)

	envPath := filepath.Join(filepath.Dir(composeFile), envName)
	if err := template.New(cfg.Logger).WriteFile(envPath, template.FormatDotenv, env); err != nil {
		return nil, err
	}
	cfg.Logger.Debug("Wrote %d entries to %s", env.Len(), envPath)

	missing, err := servicesWithoutEnvFile(composeFile, envName)
	if err != nil {
		cfg.Logger.Warn("Could not check %s for env_file entries: %v", composeFile, err)
	} else if len(missing) > 0 {
		cfg.Logger.Warn("Services not using %s: %s", envName, strings.Join(missing, ", "))
	}
	return env, nil
}

// composeEnv upper-cases keys and maps "-" and "." to "_". A later key
// that collides with an earlier one wins.
func composeEnv(set *secretset.SecretSet) *secretset.SecretSet {
	out := secretset.New(set.ScopeID)
	set.Each(func(k, v string) {
		out.Set(composeEnvName(k), v)
	})
	return out
}

var composeKeyReplacer = strings.NewReplacer("-", "_", ".", "_")

func composeEnvName(key string) string {
	return strings.ToUpper(composeKeyReplacer.Replace(key))
}

func findComposeFile(flag string) (string, error) {
	if flag != "" {
		if _, err := os.Stat(flag); err != nil {
			return "", &vcerrors.IOError{Op: "stat", Path: flag, Err: err}
		}
		return filepath.Abs(flag)
	}
	for _, name := range composeFileNames {
		if _, err := os.Stat(name); err == nil {
			return filepath.Abs(name)
		}
	}
	return "", vcerrors.UserError{
		Message:    "No compose file found in the current directory",
		Suggestion: "Use --file to point at docker-compose.yml",
	}
}

// composeProject is the part of a compose file that names env files.
type composeProject struct {
	Services map[string]struct {
		EnvFile yaml.Node `yaml:"env_file"`
	} `yaml:"services"`
}

// servicesWithoutEnvFile lists the services whose env_file does not name
// envName. env_file may be a string, a list of strings, or a list of
// {path: ...} mappings.
func servicesWithoutEnvFile(composeFile, envName string) ([]string, error) {
	data, err := os.ReadFile(composeFile)
	if err != nil {
		return nil, err
	}
	var project composeProject
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, err
	}

	var missing []string
	for name, svc := range project.Services {
		if !envFileNames(&svc.EnvFile, envName) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func envFileNames(n *yaml.Node, envName string) bool {
	matches := func(p string) bool {
		return filepath.Clean(p) == filepath.Clean(envName)
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return matches(n.Value)
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind == yaml.ScalarNode && matches(item.Value) {
				return true
			}
			if item.Kind == yaml.MappingNode {
				var entry struct {
					Path string `yaml:"path"`
				}
				if err := item.Decode(&entry); err == nil && matches(entry.Path) {
					return true
				}
			}
		}
	}
	return false
}
