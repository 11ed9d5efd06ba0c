package flowgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/callscript/internal/flow"
)

// Run expands the base document at basePath with every plan file and writes
// one YAML document per plan into outDir, named after the plan. Plans are
// processed concurrently; the first failure cancels the rest and is
// returned. On success the written paths are returned sorted.
func Run(ctx context.Context, basePath, outDir string, planPaths []string) ([]string, error) {
	f, err := os.Open(basePath)
	if err != nil {
		return nil, fmt.Errorf("flowgen: open base %q: %w", basePath, err)
	}
	base, err := flow.DecodeDocument(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("flowgen: base %q: %w", basePath, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("flowgen: create output dir: %w", err)
	}

	written := make([]string, len(planPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range planPaths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := generate(base, path, outDir)
			if err != nil {
				return err
			}
			written[i] = out
			slog.Info("flowgen: wrote graph", "plan", path, "out", out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(written)
	return written, nil
}

func generate(base flow.Document, planPath, outDir string) (string, error) {
	pf, err := os.Open(planPath)
	if err != nil {
		return "", fmt.Errorf("flowgen: open plan %q: %w", planPath, err)
	}
	plan, err := DecodePlan(pf)
	pf.Close()
	if err != nil {
		return "", fmt.Errorf("%s: %w", planPath, err)
	}
	if plan.Name == "" {
		plan.Name = strings.TrimSuffix(filepath.Base(planPath), filepath.Ext(planPath))
	}

	doc, err := Expand(base, plan)
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(outDir, plan.Name+".yaml")
	of, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("flowgen: create %q: %w", outPath, err)
	}
	if err := flow.Encode(of, doc); err != nil {
		of.Close()
		return "", err
	}
	if err := of.Close(); err != nil {
		return "", fmt.Errorf("flowgen: close %q: %w", outPath, err)
	}
	return outPath, nil
}
