package roomname

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"amber", "brisk", "calm", "dusky", "eager", "frosty", "gentle", "hazy",
	"ivory", "jolly", "keen", "lively", "mellow", "nimble", "plucky", "quiet",
	"rosy", "swift", "tidy", "vivid", "wistful", "zesty",
}

var nouns = []string{
	"aurora", "breeze", "canyon", "dune", "ember", "fjord", "glacier", "harbor",
	"island", "juniper", "lagoon", "meadow", "nebula", "orchard", "prairie",
	"quartz", "ridge", "summit", "tundra", "valley", "willow", "zenith",
}

var animals = []string{
	"badger", "crane", "dolphin", "falcon", "gecko", "heron", "ibex", "jackal",
	"kestrel", "lemur", "marmot", "narwhal", "otter", "puffin", "quokka",
	"raven", "seal", "tapir", "vole", "wren",
}

// Generate returns a memorable adjective-noun-animal room name,
// e.g. "brisk-lagoon-otter". Names are caller-chosen in the relay
// protocol, so uniqueness is best-effort only.
func Generate() string {
	return fmt.Sprintf("%s-%s-%s",
		adjectives[randomIndex(len(adjectives))],
		nouns[randomIndex(len(nouns))],
		animals[randomIndex(len(animals))],
	)
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("roomname: failed to generate random index: %v", err))
	}
	return int(n.Int64())
}
