package engine

import "context"

// ChunkSlice splits items into contiguous chunks of at most n elements.
// Order is preserved, the concatenation of the chunks equals the input,
// and every chunk except possibly the last has exactly n elements.
// n <= 0 yields the input as a single chunk.
func ChunkSlice[T any](items []T, n int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if n <= 0 {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+n-1)/n)
	for start := 0; start < len(items); start += n {
		end := start + n
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ProcessInChunks applies a pure per-element transform across
// contiguous chunks of at most n items, invoking after (the engine
// passes the memory guard's check) once each chunk completes. Context
// cancellation is honored at chunk boundaries; a transform error aborts
// immediately with the elements transformed so far discarded from the
// caller's view.
func ProcessInChunks[I, O any](ctx context.Context, items []I, n int, transform func(I) (O, error), after func()) ([]O, error) {
	if len(items) == 0 {
		return nil, nil
	}

	out := make([]O, 0, len(items))
	for _, chunk := range ChunkSlice(items, n) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, item := range chunk {
			o, err := transform(item)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
		if after != nil {
			after()
		}
	}
	return out, nil
}
