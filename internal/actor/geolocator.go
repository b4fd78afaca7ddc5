package actor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"

	"carelink/internal/service"
)

// LineGeolocator reads one JSON sample per line, e.g. piped from a GPS
// daemon. Malformed lines are logged and skipped. The channel closes at
// EOF or when ctx ends.
type LineGeolocator struct {
	r io.Reader
}

func NewLineGeolocator(r io.Reader) *LineGeolocator {
	return &LineGeolocator{r: r}
}

func (g *LineGeolocator) Watch(ctx context.Context) (<-chan service.Sample, error) {
	out := make(chan service.Sample)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(g.r)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var s service.Sample
			if err := json.Unmarshal(line, &s); err != nil {
				log.Printf("[LOCATION] skipping sample: %v", err)
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("[LOCATION] sample stream: %v", err)
		}
	}()
	return out, nil
}
