package speaker

import "github.com/charmbracelet/lipgloss"

var descriptors = [...]string{
	"Sparkly", "Cosmic", "Fuzzy", "Wobbly",
	"Snazzy", "Zippy", "Glittery", "Bouncy",
	"Toasty", "Squishy", "Dapper", "Peppy",
	"Mellow", "Twinkly", "Swooshy", "Wiggly",
}

var nouns = [...]string{
	"Capybara", "Axolotl", "Quokka", "Narwhal",
	"Pangolin", "Tardigrade", "Blobfish", "Platypus",
	"Wombat", "Fennec", "Tapir", "Okapi",
	"Manatee", "Kiwi", "Puffin", "Chinchilla",
}

// Palette holds the speaker colors, assigned by ordinal.
var Palette = [...]lipgloss.Color{
	"#FF7F50", // coral
	"#10B981", // emerald
	"#14B8A6", // teal
	"#F59E0B", // amber
	"#3B82F6", // blue
	"#A855F7", // purple
	"#EC4899", // pink
	"#0EA5E9", // sky
	"#F43F5E", // rose
	"#84CC16", // lime
	"#F97316", // orange
	"#06B6D4", // cyan
	"#D946EF", // fuchsia
	"#64748B", // slate
	"#EAB308", // yellow
	"#6366F1", // indigo
}

// hash is the classic 31-multiplier string hash with 32-bit wraparound.
func hash(s string) int32 {
	var h int32
	for _, c := range s {
		h = h*31 + int32(c)
	}
	return h
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// candidateIndexes returns the preferred descriptor and noun index for id at ordinal.
func candidateIndexes(id string, ordinal int) (int, int) {
	h := int64(hash(id))
	n := int64(len(descriptors))
	adj := abs64(h+int64(ordinal)) % n
	noun := abs64(h*7+int64(ordinal)*3) % int64(len(nouns))
	return int(adj), int(noun)
}

func nameAt(adj, noun int) string {
	return descriptors[adj] + " " + nouns[noun]
}
