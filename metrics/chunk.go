package metrics

// DefaultChunkSize is the default maximum number of points in one published
// batch.
const DefaultChunkSize = 20

// Chunk splits points into consecutive batches of at most maxSize points.
// Every batch except possibly the last is exactly maxSize long, and the
// concatenation of all batches equals the input. An empty input produces no
// batches. A maxSize below 1 is treated as 1.
func Chunk(points []Point, maxSize int) [][]Point {
	if maxSize < 1 {
		maxSize = 1
	}

	chunks := make([][]Point, 0, (len(points)+maxSize-1)/maxSize)
	for i := 0; i < len(points); i += maxSize {
		end := i + maxSize
		if end > len(points) {
			end = len(points)
		}
		chunks = append(chunks, points[i:end])
	}
	return chunks
}
