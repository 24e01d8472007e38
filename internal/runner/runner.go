// Package runner scans a set of documents and assembles the result into a
// run record.
package runner

import (
	"context"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/engine"
	"github.com/nhd2106/mongo-safe/internal/ir"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/score"
	"github.com/nhd2106/mongo-safe/internal/sources"
	"github.com/nhd2106/mongo-safe/internal/storage"
)

const DefaultWorkers = 4

type Options struct {
	Catalog  *rules.Catalog // nil = rules.Builtin()
	Settings rules.Settings
	Workers  int
	Waivers  []storage.Waiver
	Source   string   // root the documents came from
	Packs    []string // rule pack files merged into Catalog
	Logger   *zap.Logger
	Now      func() time.Time
}

// Analyze scans docs concurrently and returns the assembled run. A cancelled
// ctx stops scheduling new documents; documents already scanned are kept.
func Analyze(ctx context.Context, docs []sources.Document, opts Options) ir.Run {
	cat := opts.Catalog
	if cat == nil {
		cat = rules.Builtin()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	started := now().UTC()
	run := ir.Run{
		ID:        fmt.Sprintf("run-%d", started.UnixNano()),
		StartedAt: started,
		Source:    opts.Source,
		IRVersion: ir.Version,
		Context: ir.Context{
			RuleSeverityThreshold: opts.Settings.Threshold.String(),
			DisabledRules:         opts.Settings.DisabledIDs(),
			RulePacks:             opts.Packs,
			Workers:               workers,
		},
	}
	sort.Strings(run.Context.DisabledRules)

	selected := cat.Select(opts.Settings)
	files := make([]ir.File, len(docs))
	perDoc := make([][]ir.Finding, len(docs))
	scanned := make([]bool, len(docs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				d := docs[i]
				files[i] = ir.File{Path: d.Path, Lines: lineCount(d.Text), Bytes: len(d.Text)}
				perDoc[i] = Convert(d.Path, engine.Scan(d.Text, selected, d.Path), cat)
				scanned[i] = true
			}
		}()
	}

schedule:
	for i := range docs {
		select {
		case <-ctx.Done():
			log.Warn("analysis cancelled", zap.Int("scanned", i), zap.Int("total", len(docs)))
			break schedule
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for i := range docs {
		if !scanned[i] {
			continue
		}
		run.Files = append(run.Files, files[i])
		run.Findings = append(run.Findings, perDoc[i]...)
	}

	kept, waived := ApplyWaivers(run.Findings, opts.Waivers, started)
	run.Findings = kept
	run.Context.Waived = waived
	Sort(run.Findings)
	score.Annotate(&run)

	log.Info("analysis complete",
		zap.String("run", run.ID),
		zap.Int("files", len(run.Files)),
		zap.Int("findings", len(run.Findings)),
		zap.Int("waived", waived),
		zap.String("grade", run.Summary.Grade),
	)
	return run
}

// Convert turns engine findings for one source into run findings.
func Convert(source string, fs []engine.Finding, cat *rules.Catalog) []ir.Finding {
	out := make([]ir.Finding, 0, len(fs))
	for _, f := range fs {
		out = append(out, ir.Finding{
			ID:       FindingID(f.Rule.ID, source, f.Line),
			RuleID:   f.Rule.ID,
			RuleName: f.Rule.Name,
			Category: string(f.Rule.Category),
			Severity: f.Rule.Severity.String(),
			Source:   source,
			Line:     f.Line,
			Text:     f.Text,
			Message:  f.Rule.Name + ": " + f.Rule.Description,
			HelpURI:  f.Rule.ReferenceURL,
			Order:    cat.Position(f.Rule.ID),
		})
	}
	return out
}

// FindingID is stable across runs for the same rule, source and line.
func FindingID(ruleID, source string, line int) string {
	sum := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s|%d|%s", source, line, ruleID)))
	return fmt.Sprintf("%s-%08x", ruleID, sum)
}

// Sort orders findings by source, line, then catalog order.
func Sort(fs []ir.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Order < b.Order
	})
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}
