// Package template renders a SecretSet in the formats the CLI prints or
// writes: dotenv, shell exports, json, yaml and a plain table.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	vcerrors "github.com/systmms/vaultctl/internal/errors"
	"github.com/systmms/vaultctl/internal/logging"
	"github.com/systmms/vaultctl/internal/secretset"
	"github.com/systmms/vaultctl/internal/secure"
)

// Format names an output format.
type Format string

const (
	FormatDotenv Format = "dotenv"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatBash   Format = "bash"
	FormatFish   Format = "fish"
	FormatTable  Format = "table"
)

var formatAliases = map[string]Format{
	"env":  FormatDotenv,
	"sh":   FormatBash,
	"zsh":  FormatBash,
	"yml":  FormatYAML,
	"text": FormatTable,
}

// ParseFormat accepts one of allowed, or any format when allowed is empty.
func ParseFormat(s string, allowed ...Format) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	f := Format(name)
	if alias, ok := formatAliases[name]; ok {
		f = alias
	}

	valid := allowed
	if len(valid) == 0 {
		valid = []Format{FormatDotenv, FormatJSON, FormatYAML, FormatBash, FormatFish, FormatTable}
	}
	for _, v := range valid {
		if f == v {
			return f, nil
		}
	}

	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = string(v)
	}
	return "", vcerrors.UserError{
		Message:    fmt.Sprintf("unsupported format %q", s),
		Suggestion: "Use one of: " + strings.Join(names, ", "),
	}
}

// FormatFromPath guesses the format from a file extension, defaulting
// to dotenv.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatDotenv
}

// Renderer formats secret sets.
type Renderer struct {
	logger *logging.Logger
}

// New creates a renderer. Skipped keys are reported through logger.
func New(logger *logging.Logger) *Renderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Renderer{logger: logger}
}

// Render returns set in format f.
func (r *Renderer) Render(f Format, set *secretset.SecretSet) ([]byte, error) {
	switch f {
	case FormatDotenv:
		return renderDotenv(set), nil
	case FormatBash, FormatFish:
		return r.renderShell(f, set), nil
	case FormatJSON:
		return renderJSON(set)
	case FormatYAML:
		return renderYAML(set)
	case FormatTable:
		return renderTable(set)
	}
	return nil, fmt.Errorf("unknown format %q", f)
}

// Write renders set to w.
func (r *Renderer) Write(w io.Writer, f Format, set *secretset.SecretSet) error {
	data, err := r.Render(f, set)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteFile renders set into path as a new 0600 file, replacing any
// previous content in one rename. An existing file readable by others is
// left alone and reported as an IOError.
func (r *Renderer) WriteFile(path string, f Format, set *secretset.SecretSet) error {
	data, err := r.Render(f, set)
	if err != nil {
		return err
	}
	return secure.WriteFile(path, data)
}

func renderDotenv(set *secretset.SecretSet) []byte {
	var b bytes.Buffer
	set.Each(func(k, v string) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(dotenvValue(v))
		b.WriteByte('\n')
	})
	return b.Bytes()
}

func (r *Renderer) renderShell(f Format, set *secretset.SecretSet) []byte {
	var b bytes.Buffer
	set.Each(func(k, v string) {
		if !validIdentifier(k) {
			r.logger.Warn("Skipping %q: not a valid shell variable name", k)
			return
		}
		if f == FormatFish {
			fmt.Fprintf(&b, "set -gx %s %s\n", k, fishQuote(v))
		} else {
			fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(v))
		}
	})
	return b.Bytes()
}

func renderJSON(set *secretset.SecretSet) ([]byte, error) {
	data, err := json.MarshalIndent(set.Ordered(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func renderYAML(set *secretset.SecretSet) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	set.Each(func(k, v string) {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v},
		)
	})

	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func renderTable(set *secretset.SecretSet) ([]byte, error) {
	var b bytes.Buffer
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	set.Each(func(k, v string) {
		fmt.Fprintf(w, "%s\t%s\n", k, strings.ReplaceAll(v, "\n", `\n`))
	})
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
