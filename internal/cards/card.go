// Package cards models the playing cards that authorize moves and the deck
// they are drawn from.
package cards

import (
	"fmt"
)

type Suit string

const (
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
	Joker    Suit = "joker"
)

var standardSuits = []Suit{Hearts, Diamonds, Clubs, Spades}

type Rank string

const (
	Ace       Rank = "A"
	Two       Rank = "2"
	Three     Rank = "3"
	Four      Rank = "4"
	Five      Rank = "5"
	Six       Rank = "6"
	Seven     Rank = "7"
	Eight     Rank = "8"
	Nine      Rank = "9"
	Ten       Rank = "10"
	Jack      Rank = "J"
	Queen     Rank = "Q"
	King      Rank = "K"
	JokerRank Rank = "Joker"
)

var standardRanks = []Rank{Ace, Two, Three, Four, Five, Six, Seven, Eight, Nine, Ten, Jack, Queen, King}

type Color string

const (
	Red   Color = "red"
	Black Color = "black"
)

// Card is immutable once drawn. The wire name of Rank is "value".
type Card struct {
	Suit  Suit  `json:"suit"`
	Rank  Rank  `json:"value"`
	Color Color `json:"color"`
}

// New builds a ranked card, deriving its color from the suit.
func New(suit Suit, rank Rank) Card {
	return Card{Suit: suit, Rank: rank, Color: suitColor(suit)}
}

// NewJoker builds one of the two jokers.
func NewJoker(color Color) Card {
	return Card{Suit: Joker, Rank: JokerRank, Color: color}
}

func (c Card) IsJoker() bool {
	return c.Suit == Joker
}

// Validate rejects cards that cannot come out of a fresh deck.
func (c Card) Validate() error {
	if c.Suit == Joker {
		if c.Rank != JokerRank {
			return fmt.Errorf("joker with rank %q", c.Rank)
		}
		if c.Color != Red && c.Color != Black {
			return fmt.Errorf("joker with color %q", c.Color)
		}
		return nil
	}

	known := false
	for _, s := range standardSuits {
		if c.Suit == s {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown suit %q", c.Suit)
	}

	known = false
	for _, r := range standardRanks {
		if c.Rank == r {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown rank %q", c.Rank)
	}

	if c.Color != suitColor(c.Suit) {
		return fmt.Errorf("%s of %s cannot be %s", c.Rank, c.Suit, c.Color)
	}
	return nil
}

func (c Card) String() string {
	if c.IsJoker() {
		return string(c.Color) + " joker"
	}
	return string(c.Rank) + " of " + string(c.Suit)
}

var meanings = map[Rank]string{
	Ace:       "Move Rook",
	Two:       "Move Pawn at a",
	Three:     "Move Pawn at b",
	Four:      "Move Pawn at c",
	Five:      "Move Pawn at d",
	Six:       "Move Pawn at e",
	Seven:     "Move Pawn at f",
	Eight:     "Move Pawn at g",
	Nine:      "Move Pawn at h",
	Ten:       "Move Knight",
	Jack:      "Move Bishop",
	Queen:     "Move Queen",
	King:      "Move King",
	JokerRank: "Move Any Piece!",
}

// Meaning is the player-facing description of what a card allows.
func Meaning(c Card) string {
	if c.IsJoker() {
		return meanings[JokerRank]
	}
	return meanings[c.Rank]
}

func suitColor(s Suit) Color {
	if s == Hearts || s == Diamonds {
		return Red
	}
	return Black
}
