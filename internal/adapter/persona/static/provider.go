package staticpersona

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"mearth/internal/app/ports"
)

// Provider reads persona prompts from <Root>/<character>.md.
type Provider struct {
	Root string
}

var ErrInvalidPersonaPath = errors.New("invalid persona filepath")

func (p Provider) Persona(_ context.Context, character string) ([]byte, error) {
	path, err := secureJoin(p.Root, character+".md")
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.ErrNotFound
	}
	return b, err
}

func secureJoin(root, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || rel == ".md" {
		return "", ErrInvalidPersonaPath
	}
	if filepath.IsAbs(rel) {
		return "", ErrInvalidPersonaPath
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.Clean(filepath.Join(rootAbs, rel))
	prefix := rootAbs + string(filepath.Separator)
	if !strings.HasPrefix(target, prefix) {
		return "", ErrInvalidPersonaPath
	}
	return target, nil
}
