package persona

// Condition is one catalog entry: a presenting condition, the ages it is
// plausible for and the symptoms a patient with it may show.
type Condition struct {
	Name     string   `json:"name"`
	MinAge   int      `json:"minAge"`
	MaxAge   int      `json:"maxAge"`
	Symptoms []string `json:"symptoms"`
}

// Condition names that carry a behavioral cue.
const (
	AutismSpectrumDisorder  = "Autism Spectrum Disorder"
	MajorDepressiveDisorder = "Major Depressive Disorder"
)

var catalog = []Condition{
	{
		Name:   "ADHD",
		MinAge: 4,
		MaxAge: 65,
		Symptoms: []string{
			"fails to give close attention to details or makes careless mistakes",
			"difficulty sustaining attention in tasks or play activities",
			"does not seem to listen when spoken to directly",
			"often fidgets with or taps hands or feet",
			"difficulty organizing tasks and activities",
			"often interrupts or intrudes on others",
		},
	},
	{
		Name:   "Oppositional Defiant Disorder",
		MinAge: 5,
		MaxAge: 17,
		Symptoms: []string{
			"often loses temper",
			"is often touchy or easily annoyed",
			"is often angry and resentful",
			"often argues with authority figures or adults",
			"often actively defies or refuses to comply with requests",
			"often deliberately annoys others",
			"often blames others for their mistakes or misbehavior",
			"has been spiteful or vindictive at least twice in the past six months",
		},
	},
	{
		Name:   "Antisocial Personality Disorder",
		MinAge: 18,
		MaxAge: 65,
		Symptoms: []string{
			"failure to conform to social norms with respect to lawful behaviors",
			"deceitfulness, as indicated by repeated lying or conning others",
			"impulsivity or failure to plan ahead",
			"irritability and aggressiveness, often leading to physical fights",
			"reckless disregard for safety of self or others",
			"consistent irresponsibility",
			"lack of remorse after harming others",
		},
	},
	{
		Name:   "Schizophrenia",
		MinAge: 16,
		MaxAge: 65,
		Symptoms: []string{
			"delusions (e.g., persecutory or grandiose delusions)",
			"hallucinations",
			"disorganized speech",
			"grossly disorganized or catatonic behavior",
			"negative symptoms (e.g., diminished emotional expression)",
		},
	},
	{
		Name:   "Substance-Induced Psychotic Disorder",
		MinAge: 15,
		MaxAge: 65,
		Symptoms: []string{
			"presence of hallucinations or delusions",
			"symptoms developed during or soon after substance intoxication or withdrawal",
			"the substance used is capable of producing such symptoms",
			"psychotic symptoms not exclusive to delirium",
			"impairment in social or occupational functioning",
		},
	},
	{
		Name:   "Opioid Use Disorder",
		MinAge: 18,
		MaxAge: 65,
		Symptoms: []string{
			"opioids taken in larger amounts or over a longer period than intended",
			"persistent desire or unsuccessful efforts to cut down or control use",
			"great deal of time spent obtaining, using, or recovering from opioids",
			"craving or strong desire to use opioids",
			"recurrent use resulting in failure to fulfill major role obligations",
			"continued use despite social or interpersonal problems",
			"important activities given up or reduced because of use",
			"tolerance and withdrawal symptoms",
		},
	},
	{
		Name:   AutismSpectrumDisorder,
		MinAge: 2,
		MaxAge: 15,
		Symptoms: []string{
			"deficits in social-emotional reciprocity",
			"deficits in nonverbal communicative behaviors",
			"deficits in developing and maintaining relationships",
			"restricted, repetitive patterns of behavior or speech",
			"highly restricted, fixated interests",
			"hyper- or hyporeactivity to sensory input",
		},
	},
	{
		Name:   MajorDepressiveDisorder,
		MinAge: 18,
		MaxAge: 65,
		Symptoms: []string{
			"depressed mood most of the day, nearly every day",
			"markedly diminished interest or pleasure in all activities",
			"significant weight loss when not dieting or weight gain",
			"insomnia or hypersomnia nearly every day",
			"psychomotor agitation or retardation",
			"fatigue or loss of energy nearly every day",
			"feelings of worthlessness or excessive guilt",
			"diminished ability to think or concentrate",
			"recurrent thoughts of death or suicidal ideation",
		},
	},
}

var names = []string{
	"Alex", "Jordan", "Taylor", "Casey", "Riley", "Morgan", "Jamie", "Cameron", "Avery",
	"Quinn", "Skylar", "Charlie", "Frankie", "Finley", "Emerson", "Sage", "Remy", "Parker",
	"Hayden", "Drew", "Phoenix", "River", "Sawyer", "Rowan", "Blair", "Kendall", "Marlowe",
	"Harper", "Reese", "Dakota", "Jadin", "Ash", "Ainsley", "Ariel", "Angel", "Addison",
	"Aspen", "Deven", "Julian", "Jesse", "Terry", "London", "Max", "Noel", "Pat",
	"Peyton", "Ray", "Reagan", "Roan", "Sam", "Shae", "Tate", "Tony",
}

// reminderCues 按病症名称提供的角色提醒补充语。
var reminderCues = map[string]string{
	AutismSpectrumDisorder:  "You may struggle with social situations, changes in routine, and have intense interests in specific topics. ",
	MajorDepressiveDisorder: "You may feel persistently sad, lack energy and motivation, and have difficulty finding joy in activities. ",
}

// correctionCues 按病症名称提供的纠正回复补充语。
var correctionCues = map[string]string{
	AutismSpectrumDisorder:  "I've been having a hard time in social situations and dealing with changes. Sometimes I get really focused on certain topics or routines.",
	MajorDepressiveDisorder: "I've been feeling really down lately, and I'm having trouble finding energy or interest in things I used to enjoy.",
}

// Catalog returns a copy of the condition table.
func Catalog() []Condition {
	out := make([]Condition, len(catalog))
	for i, c := range catalog {
		c.Symptoms = append([]string(nil), c.Symptoms...)
		out[i] = c
	}
	return out
}

// Lookup finds a condition by name.
func Lookup(name string) (Condition, bool) {
	for _, c := range catalog {
		if c.Name == name {
			c.Symptoms = append([]string(nil), c.Symptoms...)
			return c, true
		}
	}
	return Condition{}, false
}

// Names returns the pool patient names are drawn from.
func Names() []string {
	return append([]string(nil), names...)
}

// ReminderCue returns the per-turn behavioral reminder for a condition, or
// "" when none is registered.
func ReminderCue(condition string) string {
	return reminderCues[condition]
}

// CorrectionCue returns the elaboration appended to a corrective reply, or
// "" when none is registered.
func CorrectionCue(condition string) string {
	return correctionCues[condition]
}
