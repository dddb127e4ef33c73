package importer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultConcurrency はImportAllの既定の最大並列数。
const DefaultConcurrency = 4

// SourceResult は1つの取り込み元に対する結果を表す。
type SourceResult struct {
	Source string
	Result *Result
	Err    error
}

// ImportAll は複数の取り込み元を並列にImportする。
// 戻り値はsourcesと同じ順序で、個々の失敗は他の取り込みを止めない。
func (im *Importer) ImportAll(ctx context.Context, sources []string, maxAge time.Duration, concurrency int) []SourceResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]SourceResult, len(sources))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, src string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := im.Import(ctx, src, maxAge)
			results[i] = SourceResult{Source: src, Result: res, Err: err}
		}(i, src)
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	im.logger.Info("一括取り込みが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Int("failed_count", failed),
	)

	return results
}
