package persona

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Gender of a generated patient.
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
)

var genders = []Gender{Male, Female}

// Persona captures the synthesized patient identity driving the role-play.
// It is immutable once generated.
type Persona struct {
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Gender    Gender    `json:"gender"`
	Condition Condition `json:"condition"`
	Symptoms  []string  `json:"symptoms"`
}

// Summary renders the patient profile an interviewer reads before the
// intake begins.
func (p Persona) Summary() string {
	return fmt.Sprintf("Patient Profile:\nName: %s\nAge: %d years old\nSex: %s\n\n"+
		"Note: This patient is experiencing symptoms consistent with a mental health condition. "+
		"Please proceed with the intake interview and gather more information as appropriate.",
		p.Name, p.Age, p.Gender)
}

// Generator draws random personas from the catalog. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a Generator reading from src.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

var (
	defaultOnce sync.Once
	defaultGen  *Generator
)

// Default returns the process-wide generator, seeded from the clock.
func Default() *Generator {
	defaultOnce.Do(func() {
		defaultGen = NewGenerator(rand.NewSource(time.Now().UnixNano()))
	})
	return defaultGen
}

// Generate picks a condition, age, gender and name uniformly and presents the
// condition's complete symptom list in random order.
func (g *Generator) Generate() Persona {
	g.mu.Lock()
	defer g.mu.Unlock()

	condition := catalog[g.rnd.Intn(len(catalog))]
	age := condition.MinAge + g.rnd.Intn(condition.MaxAge-condition.MinAge+1)

	symptoms := make([]string, len(condition.Symptoms))
	for i, j := range g.rnd.Perm(len(condition.Symptoms)) {
		symptoms[i] = condition.Symptoms[j]
	}
	condition.Symptoms = append([]string(nil), condition.Symptoms...)

	return Persona{
		Name:      names[g.rnd.Intn(len(names))],
		Age:       age,
		Gender:    genders[g.rnd.Intn(len(genders))],
		Condition: condition,
		Symptoms:  symptoms,
	}
}
