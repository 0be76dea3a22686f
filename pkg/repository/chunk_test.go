package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/esg-lab/pythia/pkg/domain/interfaces"
	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/repository/firestore"
	"github.com/esg-lab/pythia/pkg/repository/memory"
)

func runChunkRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and timestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		chunk := &model.Chunk{
			SourceName: "esg_report_2025.pdf",
			Text:       "carbon emissions decreased by 12% year over year",
			Language:   "en",
		}

		created, err := repo.Chunk().Create(ctx, chunk)
		gt.NoError(t, err).Required()

		gt.String(t, string(created.ID)).NotEqual("")
		gt.Value(t, created.SourceName).Equal("esg_report_2025.pdf")
		gt.Value(t, created.Text).Equal(chunk.Text)
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("Create preserves provided ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		customID := model.ChunkID(fmt.Sprintf("custom-%d", time.Now().UnixNano()))
		chunk := &model.Chunk{
			ID:         customID,
			SourceName: "board_policy.pdf",
			Text:       "board diversity policy",
		}

		created, err := repo.Chunk().Create(ctx, chunk)
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).Equal(customID)
	})

	t.Run("Get retrieves existing chunk", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Chunk().Create(ctx, &model.Chunk{
			SourceName: "water_usage.pdf",
			Text:       "freshwater withdrawal per production unit",
			Language:   "en",
		})
		gt.NoError(t, err).Required()

		retrieved, err := repo.Chunk().Get(ctx, created.ID)
		gt.NoError(t, err).Required()

		gt.Value(t, retrieved.ID).Equal(created.ID)
		gt.Value(t, retrieved.Text).Equal(created.Text)
		gt.Value(t, retrieved.Language).Equal("en")
	})

	t.Run("Get returns error for missing chunk", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Chunk().Get(ctx, model.ChunkID("no-such-chunk"))
		gt.Error(t, err)
	})

	t.Run("List returns chunks in creation order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		texts := []string{"first chunk", "second chunk", "third chunk"}
		for i, text := range texts {
			_, err := repo.Chunk().Create(ctx, &model.Chunk{
				SourceName: "ordering.pdf",
				Text:       text,
				CreatedAt:  time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
			})
			gt.NoError(t, err).Required()
		}

		chunks, err := repo.Chunk().List(ctx)
		gt.NoError(t, err).Required()
		gt.Number(t, len(chunks)).GreaterOrEqual(3)

		var got []string
		for _, c := range chunks {
			if c.SourceName == "ordering.pdf" {
				got = append(got, c.Text)
			}
		}
		gt.Array(t, got).Equal(texts)
	})

	t.Run("CreateMany stores all chunks", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		chunks := []*model.Chunk{
			{SourceName: "bulk.pdf", Text: "governance framework overview"},
			{SourceName: "bulk.pdf", Text: "supplier code of conduct"},
		}
		gt.NoError(t, repo.Chunk().CreateMany(ctx, chunks)).Required()

		count, err := repo.Chunk().Count(ctx)
		gt.NoError(t, err).Required()
		gt.Number(t, count).GreaterOrEqual(2)
	})
}

func TestMemoryChunkRepository(t *testing.T) {
	runChunkRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestFirestoreChunkRepository(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT is not set")
	}
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE")

	runChunkRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		prefix := fmt.Sprintf("test-%d-", time.Now().UnixNano())
		repo, err := firestore.New(context.Background(), projectID, databaseID,
			firestore.WithCollectionPrefix(prefix))
		gt.NoError(t, err).Required()
		t.Cleanup(func() {
			if err := repo.Close(); err != nil {
				t.Logf("failed to close repository: %v", err)
			}
		})
		return repo
	})
}
