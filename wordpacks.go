package main

import (
	"embed"
	"encoding/json"
	"errors"
	"math/rand"
	"path"

	"github.com/rs/zerolog/log"
)

//go:embed wordpacks/*.json
var wordPackFS embed.FS

type WordPair struct {
	Normal string `json:"normal"`
	Odd    string `json:"odd"`
}

type WordPack struct {
	Name  string     `json:"name"`
	Pairs []WordPair `json:"pairs"`
}

// WordPacks holds every category pack, loaded once at startup and read-only
// afterwards.
type WordPacks struct {
	packs []WordPack
}

func loadWordPacks() (*WordPacks, error) {
	entries, err := wordPackFS.ReadDir("wordpacks")
	if err != nil {
		return nil, err
	}

	wp := &WordPacks{}
	for _, entry := range entries {
		data, err := wordPackFS.ReadFile(path.Join("wordpacks", entry.Name()))
		if err != nil {
			return nil, err
		}

		var pack WordPack
		if err := json.Unmarshal(data, &pack); err != nil {
			return nil, err
		}
		if len(pack.Pairs) == 0 {
			continue
		}
		wp.packs = append(wp.packs, pack)
	}

	if len(wp.packs) == 0 {
		return nil, errors.New("no usable word packs")
	}

	log.Debug().Int("packs", len(wp.packs)).Msg("START: Loaded word packs")

	return wp, nil
}

func (wp *WordPacks) Categories() []string {
	names := make([]string, 0, len(wp.packs))
	for _, pack := range wp.packs {
		names = append(names, pack.Name)
	}
	return names
}

// eligible returns the packs allowed by the room settings, falling back to
// all packs when the filters exclude everything.
func (wp *WordPacks) eligible(settings Settings) []WordPack {
	excluded := make(map[string]bool, len(settings.ExcludedCategories))
	for _, name := range settings.ExcludedCategories {
		excluded[name] = true
	}

	out := make([]WordPack, 0, len(wp.packs))
	for _, pack := range wp.packs {
		if settings.Category != "" && pack.Name != settings.Category {
			continue
		}
		if excluded[pack.Name] {
			continue
		}
		out = append(out, pack)
	}
	if len(out) == 0 {
		return wp.packs
	}
	return out
}

const pairPickRetries = 24

// PickPair selects a random pair from the eligible packs, avoiding words the
// room has already seen. After a bounded number of retries repeats are
// allowed rather than failing the round.
func (wp *WordPacks) PickPair(settings Settings, usedWords []string) WordPair {
	used := make(map[string]bool, len(usedWords))
	for _, w := range usedWords {
		used[w] = true
	}

	packs := wp.eligible(settings)

	var pair WordPair
	for i := 0; i < pairPickRetries; i++ {
		pack := packs[rand.Intn(len(packs))]
		pair = pack.Pairs[rand.Intn(len(pack.Pairs))]
		if !used[pair.Normal] {
			return pair
		}
	}
	return pair
}
