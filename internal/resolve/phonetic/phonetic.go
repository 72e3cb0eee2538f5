// Package phonetic implements resolve.LocalMatcher with Double Metaphone
// encoding and Jaro-Winkler similarity. It needs no model and no network, so
// it is the on-device choice when no embedding backend is configured.
//
// Matching runs in two stages:
//
//  1. Phonetic candidates: a label whose Double Metaphone codes overlap the
//     word's codes is a candidate, scored by Jaro-Winkler similarity and
//     accepted above the phonetic threshold (default 0.70).
//
//  2. Fuzzy fallback: when no label sounds alike, plain Jaro-Winkler is used
//     with a stricter threshold (default 0.85).
//
// Every label of every animal is considered, so a mis-heard sound ("mu" for
// "moo") still lands on the right key. Equal scores go to the animal
// registered first.
package phonetic

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/brainball/internal/resolve"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum score for a phonetic candidate.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score when nothing sounds alike.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

type label struct {
	key   string
	text  string
	codes map[string]struct{}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	labels            []label
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New precomputes phonetic codes for every label of animals.
func New(animals []resolve.Animal, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, a := range animals {
		if a.Key == "" {
			continue
		}
		for _, l := range a.Labels {
			l = strings.ToLower(strings.TrimSpace(l))
			if l == "" {
				continue
			}
			m.labels = append(m.labels, label{key: a.Key, text: l, codes: codes(l)})
		}
	}
	return m
}

// Match implements resolve.LocalMatcher. It never returns an error.
func (m *Matcher) Match(_ context.Context, word string) (string, float64, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return "", 0, nil
	}
	wordCodes := codes(word)

	var (
		bestKey   string
		bestScore float64
		phonetic  bool
	)
	for _, l := range m.labels {
		score := matchr.JaroWinkler(word, l.text, false)
		if word == l.text {
			score = 1
		}
		if overlap(wordCodes, l.codes) {
			if score >= m.phoneticThreshold && (!phonetic || score > bestScore) {
				bestKey, bestScore, phonetic = l.key, score, true
			}
			continue
		}
		if !phonetic && score >= m.fuzzyThreshold && score > bestScore {
			bestKey, bestScore = l.key, score
		}
	}
	return bestKey, bestScore, nil
}

// codes returns the non-empty Double Metaphone codes of s.
func codes(s string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(s)
	if p != "" {
		out[p] = struct{}{}
	}
	if sec != "" {
		out[sec] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

var _ resolve.LocalMatcher = (*Matcher)(nil)
