package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"go-daw/debug"
	"go-daw/dsp"
)

// ChainPreset is the saved effect layout of an engine.
type ChainPreset struct {
	Master []dsp.BlockState            `json:"master"`
	Synths map[string][]dsp.BlockState `json:"synths,omitempty"`
}

// Preset captures the master chain and every synth chain.
func (e *Engine) Preset() ChainPreset {
	p := ChainPreset{
		Master: e.master.Snapshot(),
		Synths: make(map[string][]dsp.BlockState),
	}
	for _, v := range e.voices.Load().voices {
		if v.chain.Len() > 0 {
			p.Synths[v.id] = v.chain.Snapshot()
		}
	}
	return p
}

// ApplyPreset rebuilds the chains from p. Synth entries for ids that are not
// registered are skipped. Nothing changes if any block fails to restore.
func (e *Engine) ApplyPreset(p ChainPreset) error {
	master, err := dsp.Restore(p.Master, e.sampleRate)
	if err != nil {
		return fmt.Errorf("master chain: %w", err)
	}
	synths := make(map[*dsp.Chain][]dsp.Block)
	for id, states := range p.Synths {
		c, ok := e.SynthChain(id)
		if !ok {
			debug.Log("engine", "preset: no synth %q, skipped", id)
			continue
		}
		blocks, err := dsp.Restore(states, e.sampleRate)
		if err != nil {
			return fmt.Errorf("synth %q chain: %w", id, err)
		}
		synths[c] = blocks
	}

	e.master.Replace(master)
	for c, blocks := range synths {
		c.Replace(blocks)
	}
	return nil
}

// SaveChains writes the chain layout to path as JSON.
func (e *Engine) SaveChains(path string) error {
	data, err := json.MarshalIndent(e.Preset(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadChains reads a layout written by SaveChains and applies it.
func (e *Engine) LoadChains(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var p ChainPreset
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return e.ApplyPreset(p)
}
