package engine

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/maddyblue/go-dsp/fft"

	"go-daw/queue"
)

// AnalyzerSize is the number of mono samples per FFT frame.
const AnalyzerSize = 1024

type frame [AnalyzerSize]float32

// Analyzer computes a magnitude spectrum of the output. Render copies mono
// frames into a lock-free queue and never waits; a background goroutine
// drains it on a ticker and runs the FFT.
type Analyzer struct {
	q *queue.Bounded[frame]

	// only touched by the render goroutine
	fill frame
	n    int

	mu       sync.Mutex
	spectrum []float64

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewAnalyzer starts an analyzer that checks for frames every interval.
func NewAnalyzer(interval time.Duration) (*Analyzer, error) {
	q, err := queue.NewBounded[frame](8)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 30 * time.Millisecond
	}
	a := &Analyzer{
		q:    q,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go a.loop(interval)
	return a, nil
}

// feed is called from Render.
func (a *Analyzer) feed(left, right []float32) {
	for i := range left {
		a.fill[a.n] = (left[i] + right[i]) * 0.5
		a.n++
		if a.n == AnalyzerSize {
			a.q.Enqueue(a.fill) // dropped when the analyzer falls behind
			a.n = 0
		}
	}
}

func (a *Analyzer) loop(interval time.Duration) {
	defer close(a.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]float64, AnalyzerSize)
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}

		var latest frame
		got := false
		for {
			f, ok := a.q.Dequeue()
			if !ok {
				break
			}
			latest, got = f, true
		}
		if !got {
			continue
		}
		for i, v := range latest {
			// Hann window
			w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(AnalyzerSize-1))
			buf[i] = float64(v) * w
		}
		a.publish(magnitudes(buf))
	}
}

// magnitudes returns the normalised magnitude of bins 0..N/2.
func magnitudes(x []float64) []float64 {
	bins := fft.FFTReal(x)
	out := make([]float64, len(bins)/2+1)
	for i, c := range bins[:len(out)] {
		out[i] = cmplx.Abs(c) / float64(len(x))
	}
	return out
}

func (a *Analyzer) publish(s []float64) {
	a.mu.Lock()
	a.spectrum = s
	a.mu.Unlock()
}

// Spectrum returns the latest magnitude spectrum, nil before the first frame.
func (a *Analyzer) Spectrum() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spectrum == nil {
		return nil
	}
	out := make([]float64, len(a.spectrum))
	copy(out, a.spectrum)
	return out
}

// BinHz returns the centre frequency of spectrum bin i.
func BinHz(i int, sampleRate float64) float64 {
	return float64(i) * sampleRate / AnalyzerSize
}

// Close stops the background goroutine.
func (a *Analyzer) Close() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}

// Spectrum returns the spectrum of the attached analyzer, nil if none.
func (e *Engine) Spectrum() []float64 {
	if a := e.analyzer.Load(); a != nil {
		return a.Spectrum()
	}
	return nil
}
