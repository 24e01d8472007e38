package runner

import (
	"context"
	"fmt"
	"testing"

	"github.com/nhd2106/mongo-safe/internal/sources"
)

func BenchmarkAnalyze_Small(b *testing.B) {
	docs := []sources.Document{catalogSample()}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		run := Analyze(context.Background(), docs, Options{})
		if len(run.Findings) == 0 {
			b.Fatal("no findings")
		}
	}
}

func BenchmarkAnalyze_ManyFiles(b *testing.B) {
	sample := catalogSample()
	docs := make([]sources.Document, 64)
	for i := range docs {
		docs[i] = sources.Document{Path: fmt.Sprintf("src/f%03d.js", i), Text: sample.Text}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Analyze(context.Background(), docs, Options{Workers: 8})
	}
}
