package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

func newAnalysisService(analyzer store.Analyzer) (*AnalysisServiceImpl, store.ChunkStore) {
	chunks := store.NewMemoryChunkStoreImpl(100, time.Hour)
	return NewAnalysisServiceImpl(chunks, analyzer, logging.NewNopLogger()), chunks
}

func receive(t *testing.T, svc *AnalysisServiceImpl, id string, index, total int, data string) *models.ChunkReceipt {
	t.Helper()
	receipt, err := svc.ReceiveChunk(context.Background(), models.UploadChunkRequest{
		UploadId:    id,
		ChunkIndex:  index,
		TotalChunks: total,
		ChunkData:   data,
	})
	require.NoError(t, err)
	return receipt
}

func TestFinalize_JoinsInIndexOrder(t *testing.T) {
	analyzer := &fakeAnalyzer{result: "a cat"}
	svc, _ := newAnalysisService(analyzer)

	// "B" arrives for index 1 before "A" arrives for index 0
	receive(t, svc, "u1", 1, 2, "B")
	receipt := receive(t, svc, "u1", 0, 2, "A")
	require.True(t, receipt.IsComplete)

	analysis, err := svc.FinalizeAnalysis(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "a cat", analysis)
	require.Equal(t, "AB", analyzer.payload)
}

func TestFinalize_UnknownUpload(t *testing.T) {
	analyzer := &fakeAnalyzer{result: "unused"}
	svc, _ := newAnalysisService(analyzer)

	_, err := svc.FinalizeAnalysis(context.Background(), "missing")
	require.ErrorIs(t, err, apperror.ErrUploadNotFound)
	require.Zero(t, analyzer.calls.Load())
}

func TestFinalize_IncompleteUpload(t *testing.T) {
	analyzer := &fakeAnalyzer{result: "unused"}
	svc, _ := newAnalysisService(analyzer)

	receive(t, svc, "u1", 0, 3, "A")
	receive(t, svc, "u1", 2, 3, "C")

	_, err := svc.FinalizeAnalysis(context.Background(), "u1")
	require.ErrorIs(t, err, apperror.ErrIncompleteUpload)
	require.Zero(t, analyzer.calls.Load())
}

func TestFinalize_ConsumesBuffer(t *testing.T) {
	analyzer := &fakeAnalyzer{result: "done"}
	svc, _ := newAnalysisService(analyzer)

	receive(t, svc, "u1", 0, 1, "A")

	_, err := svc.FinalizeAnalysis(context.Background(), "u1")
	require.NoError(t, err)

	_, err = svc.FinalizeAnalysis(context.Background(), "u1")
	require.ErrorIs(t, err, apperror.ErrUploadNotFound)
	require.Equal(t, int32(1), analyzer.calls.Load())
}

func TestFinalize_AnalyzerFailureKeepsBuffer(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model overloaded")}
	svc, _ := newAnalysisService(analyzer)

	receive(t, svc, "u1", 0, 1, "A")

	_, err := svc.FinalizeAnalysis(context.Background(), "u1")
	require.Error(t, err)

	// the entry survives, so a second finalize can succeed
	analyzer.err = nil
	analyzer.result = "recovered"

	analysis, err := svc.FinalizeAnalysis(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "recovered", analysis)
	require.Equal(t, int32(2), analyzer.calls.Load())
}

func TestFinalize_PassesSelection(t *testing.T) {
	analyzer := &fakeAnalyzer{result: "ok"}
	svc, _ := newAnalysisService(analyzer)

	selection := &models.Selection{X: 10, Y: 20, Width: 30, Height: 40}
	_, err := svc.ReceiveChunk(context.Background(), models.UploadChunkRequest{
		UploadId:    "u1",
		ChunkIndex:  0,
		TotalChunks: 1,
		ChunkData:   "A",
		Selection:   selection,
	})
	require.NoError(t, err)

	_, err = svc.FinalizeAnalysis(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, selection, analyzer.selection)
}

func TestFinalize_ConcurrentCallsInvokeAnalyzerOnce(t *testing.T) {
	analyzer := &fakeAnalyzer{result: "once"}
	svc, _ := newAnalysisService(analyzer)

	receive(t, svc, "u1", 0, 1, "A")

	const workers = 8
	var wg sync.WaitGroup
	var successes, notFound atomic.Int32

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.FinalizeAnalysis(context.Background(), "u1")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, apperror.ErrUploadNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), successes.Load())
	require.Equal(t, int32(workers-1), notFound.Load())
	require.Equal(t, int32(1), analyzer.calls.Load())
}
