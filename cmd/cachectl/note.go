package main

import (
	"time"

	"github.com/agentuity/go-cacheable/cache"
)

// Note is the value cachectl stores.
type Note struct {
	NoteID  string    `msgpack:"id" yaml:"id"`
	Text    string    `msgpack:"text" yaml:"text"`
	Created time.Time `msgpack:"created" yaml:"created"`
}

func (n *Note) ID() string { return n.NoteID }

func newNoteRegistry() *cache.Registry[*Note] {
	reg := cache.NewRegistry[*Note]()
	cache.MustRegister[*Note, *Note](reg, "note")
	return reg
}
