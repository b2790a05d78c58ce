package cards

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// DeckSize is the number of cards in a fresh deck: 13 ranks in 4 suits
	// plus two jokers.
	DeckSize = 54

	// LowWaterMark is the remaining length below which a fresh deck is
	// appended.
	LowWaterMark = 5
)

var ErrEmptyDeck = errors.New("deck is empty")

// Deck is drawn from the end.
type Deck []Card

// NewDeck returns a freshly shuffled 54-card deck.
func NewDeck() (Deck, error) {
	cards := make([]Card, 0, DeckSize)
	for _, s := range standardSuits {
		for _, r := range standardRanks {
			cards = append(cards, New(s, r))
		}
	}
	cards = append(cards, NewJoker(Red), NewJoker(Black))

	shuffled, err := Shuffle(cards)
	if err != nil {
		return nil, err
	}
	return Deck(shuffled), nil
}

// Shuffle returns a uniformly permuted copy of cards (Fisher-Yates over
// crypto/rand).
func Shuffle(cards []Card) ([]Card, error) {
	out := make([]Card, len(cards))
	copy(out, cards)

	for i := len(out) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("failed to shuffle: %w", err)
		}
		j := int(n.Int64())
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Draw removes and returns the last card.
func (d *Deck) Draw() (Card, error) {
	n := len(*d)
	if n == 0 {
		return Card{}, ErrEmptyDeck
	}
	c := (*d)[n-1]
	*d = (*d)[:n-1]
	return c, nil
}

// Replenish appends a fresh shuffled deck when fewer than LowWaterMark cards
// remain. The remaining cards are kept so the previous order is not reused.
func (d *Deck) Replenish() (bool, error) {
	if len(*d) >= LowWaterMark {
		return false, nil
	}
	fresh, err := NewDeck()
	if err != nil {
		return false, err
	}
	*d = append(*d, fresh...)
	return true, nil
}

// Clone returns an independent copy.
func (d Deck) Clone() Deck {
	if d == nil {
		return nil
	}
	out := make(Deck, len(d))
	copy(out, d)
	return out
}

func (d Deck) Validate() error {
	for i, c := range d {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("card %d: %w", i, err)
		}
	}
	return nil
}
