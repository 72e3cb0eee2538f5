package resolve

import "strings"

// Animal is a resolvable animal with the words that should map to it. The
// first label is the animal's reference text.
type Animal struct {
	Key    string
	Labels []string
}

// DefaultAnimals is the farm set in registration order. Order matters: it is
// the tie-break for equal similarity scores.
var DefaultAnimals = []Animal{
	{Key: "cow", Labels: []string{"cow", "cattle", "bovine", "moo", "mooing"}},
	{Key: "pig", Labels: []string{"pig", "swine", "hog", "oink", "oinking", "snort"}},
	{Key: "chicken", Labels: []string{"chicken", "hen", "rooster", "cluck", "clucking", "bawk"}},
	{Key: "sheep", Labels: []string{"sheep", "lamb", "ewe", "ram", "baa", "baaing", "bleat"}},
	{Key: "horse", Labels: []string{"horse", "pony", "mare", "stallion", "neigh", "whinny"}},
	{Key: "duck", Labels: []string{"duck", "drake", "quack", "quacking"}},
	{Key: "goat", Labels: []string{"goat", "kid", "bleat", "bleating"}},
	{Key: "dog", Labels: []string{"dog", "puppy", "pup", "woof", "bark", "barking"}},
	{Key: "cat", Labels: []string{"cat", "kitten", "kitty", "meow", "meowing", "purr"}},
}

// DefaultRandomKeys is the pool used when the remote tier is unreachable.
var DefaultRandomKeys = []string{"bird", "dog", "cat", "cow", "pig", "chicken"}

// DefaultStaticTable maps common words and animal sounds to animal keys.
var DefaultStaticTable = map[string]string{
	"moo": "cow", "cow": "cow", "cattle": "cow", "bovine": "cow",
	"oink": "pig", "pig": "pig", "swine": "pig", "hog": "pig",
	"cluck": "chicken", "chicken": "chicken", "hen": "chicken", "rooster": "chicken", "bawk": "chicken",
	"baa": "sheep", "sheep": "sheep", "lamb": "sheep", "bleat": "sheep",
	"neigh": "horse", "horse": "horse", "pony": "horse", "whinny": "horse",
	"quack": "duck", "duck": "duck",
	"goat": "goat", "kid": "goat",
	"woof": "dog", "bark": "dog", "dog": "dog", "puppy": "dog", "pup": "dog",
	"meow": "cat", "cat": "cat", "kitten": "cat", "kitty": "cat", "purr": "cat",
}

// AnimalKeys returns the keys of animals in order.
func AnimalKeys(animals []Animal) []string {
	keys := make([]string, len(animals))
	for i, a := range animals {
		keys[i] = a.Key
	}
	return keys
}

// normalizeTable returns a copy of table with trimmed, lowercased keys.
func normalizeTable(table map[string]string) map[string]string {
	out := make(map[string]string, len(table))
	for k, v := range table {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
