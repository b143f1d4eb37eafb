// Package demo produces the synthetic redelivery-form input used by each run.
package demo

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Name is a recipient name in kanji and romaji.
type Name struct {
	Family       string
	Given        string
	FamilyRomaji string
	GivenRomaji  string
}

// Input is the generated data for one run.
type Input struct {
	Name           Name
	TrackingNumber string
	DeliveryDate   string // YYYY-MM-DD
	TimeSlot       string
}

// Generator produces a fresh Input per run.
type Generator interface {
	Generate() Input
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() Input

// Generate calls f.
func (f GeneratorFunc) Generate() Input { return f() }

// Fixed returns a Generator that always yields in.
func Fixed(in Input) Generator {
	return GeneratorFunc(func() Input { return in })
}

var names = []Name{
	{Family: "田中", Given: "太郎", FamilyRomaji: "Tanaka", GivenRomaji: "Taro"},
	{Family: "佐藤", Given: "花子", FamilyRomaji: "Sato", GivenRomaji: "Hanako"},
	{Family: "鈴木", Given: "健太", FamilyRomaji: "Suzuki", GivenRomaji: "Kenta"},
	{Family: "高橋", Given: "美咲", FamilyRomaji: "Takahashi", GivenRomaji: "Misaki"},
	{Family: "渡辺", Given: "翔太", FamilyRomaji: "Watanabe", GivenRomaji: "Shota"},
}

var timeSlots = []string{
	"午前中 (8:00-12:00)",
	"14:00-16:00",
	"16:00-18:00",
	"18:00-20:00",
	"19:00-21:00",
}

// Random generates inputs from a pseudo-random source and a clock.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewRandom creates a Random generator. A nil rnd uses a randomly seeded
// source and a nil now uses time.Now.
func NewRandom(rnd *rand.Rand, now func() time.Time) *Random {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if now == nil {
		now = time.Now
	}
	return &Random{rnd: rnd, now: now}
}

// Generate implements Generator. It is safe for concurrent use.
func (g *Random) Generate() Input {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Input{
		Name:           names[g.rnd.IntN(len(names))],
		TrackingNumber: trackingNumber(g.rnd),
		DeliveryDate:   deliveryDate(g.rnd, g.now()),
		TimeSlot:       timeSlots[g.rnd.IntN(len(timeSlots))],
	}
}

// trackingNumber returns an 11 digit Yu-Pack style number without a leading zero.
func trackingNumber(rnd *rand.Rand) string {
	return fmt.Sprintf("%d%010d", rnd.IntN(9)+1, rnd.Int64N(10_000_000_000))
}

// deliveryDate returns a date 3 to 7 days after now.
func deliveryDate(rnd *rand.Rand, now time.Time) string {
	return now.AddDate(0, 0, rnd.IntN(5)+3).Format("2006-01-02")
}

// Goal renders the natural-language instructions sent to the automation agent.
func Goal(in Input) string {
	var b strings.Builder
	b.WriteString("This is a DEMO for a live event. Your goal is to demonstrate form-filling capability, NOT to complete the form successfully.\n\n")
	b.WriteString("1. Navigate to the Japan Post redelivery form\n")
	b.WriteString("2. Attempt to fill in these fields:\n")
	fmt.Fprintf(&b, "   - Tracking Number: %s\n", in.TrackingNumber)
	fmt.Fprintf(&b, "   - Name: %s %s\n", in.Name.Family, in.Name.Given)
	fmt.Fprintf(&b, "   - Delivery Date: %s\n", in.DeliveryDate)
	fmt.Fprintf(&b, "   - Time Slot: %s\n\n", in.TimeSlot)
	b.WriteString("3. If the tracking number is rejected, that's OK - just demonstrate the interaction\n")
	b.WriteString("4. Do NOT search the web for valid tracking numbers\n")
	b.WriteString("5. Do NOT try multiple approaches - just show the form interaction\n")
	b.WriteString("6. Stop after demonstrating form filling (whether successful or not)")
	return b.String()
}
