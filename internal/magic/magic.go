// Package magic produces the playful texts behind /magic.
package magic

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

var (
	heroes   = []string{"A wandering bard", "The night-shift sysadmin", "A very small knight", "Your cat"}
	dragons  = []string{"an ancient red dragon", "a sleepy cave wyrm", "a dragon made of unread emails", "two dragons in a trench coat"}
	outcomes = []string{"and won after %d rounds", "and called it a draw after %d rounds", "and ran away after %d rounds", "and made friends after %d rounds"}

	fairyMoods   = []string{"giggle", "hum an old tune", "argue about mushrooms", "twirl in circles"}
	fairyPlaces  = []string{"under the oak tree", "around the campfire", "on top of a teacup", "in the moonlit meadow"}
	fairyThought = []string{"Life is better with glitter.", "Nobody counts the steps.", "Tomorrow smells like rain.", "Every dance ends with a bow."}
)

// Generator draws from its own RNG; safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Generator seeded with seed. Equal seeds give equal texts.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Generator) pick(xs []string) string {
	return xs[g.rng.IntN(len(xs))]
}

// FightDragons reports the outcome of a made-up battle.
func (g *Generator) FightDragons() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	rounds := 1 + g.rng.IntN(12)
	return fmt.Sprintf("%s fought %s %s.", g.pick(heroes), g.pick(dragons), fmt.Sprintf(g.pick(outcomes), rounds))
}

// DanceWithFairies describes a fairy dance and what the fairies think of it.
func (g *Generator) DanceWithFairies() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 2 + g.rng.IntN(7)
	return fmt.Sprintf("%d fairies %s %s. They think: %q", n, g.pick(fairyMoods), g.pick(fairyPlaces), g.pick(fairyThought))
}

// Text is the full /magic reply: the battle, a blank line, then the dance.
func (g *Generator) Text() string {
	return g.FightDragons() + "\n\n" + g.DanceWithFairies()
}
