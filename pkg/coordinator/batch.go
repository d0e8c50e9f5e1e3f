package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pixora/pixora/pkg/models"
)

// runBatch fans the generation stage out over the requested item count
// with bounded concurrency. Per-item failures are recorded, not fatal;
// the stage fails only when every item fails.
func (c *Coordinator) runBatch(ctx context.Context, state *runState) (any, error) {
	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		images     []*models.GeneratedImage
		itemErrors []models.ItemError
	)

	sem := make(chan struct{}, c.batchConcurrency)

	for i := 0; i < state.req.Count; i++ {
		wg.Add(1)

		go func(index int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			image, err := c.generateItem(ctx, state, index)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				itemErrors = append(itemErrors, models.ItemError{Index: index, Error: err.Error()})

				return
			}

			images = append(images, image)
		}(i)
	}

	wg.Wait()

	sort.Slice(images, func(a, b int) bool { return images[a].Index < images[b].Index })
	sort.Slice(itemErrors, func(a, b int) bool { return itemErrors[a].Index < itemErrors[b].Index })

	state.images = images
	state.itemErrors = itemErrors

	if len(images) == 0 {
		return nil, fmt.Errorf("all %d generation attempts failed", state.req.Count)
	}

	return map[string]any{
		"generated": len(images),
		"failed":    len(itemErrors),
	}, nil
}

func (c *Coordinator) generateItem(ctx context.Context, state *runState, index int) (image *models.GeneratedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			image = nil
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()

	image, err = c.agents.Generator.Generate(ctx, state.enhanced, state.req.Size)
	if err != nil {
		return nil, err
	}

	image.Index = index

	return image, nil
}
