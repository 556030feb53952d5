package arena

import "math/rand"

// wordCorpus holds the candidate target words. Common concrete nouns work
// best: rare words make the offense's job hopeless, and function words make
// the defense's job hopeless.
var wordCorpus = []string{
	"anchor", "balloon", "bridge", "butter", "candle", "castle",
	"cloud", "compass", "diamond", "engine", "feather", "forest",
	"garden", "glacier", "hammer", "harbor", "island", "jungle",
	"kettle", "ladder", "lantern", "magnet", "mirror", "mountain",
	"needle", "ocean", "orange", "pencil", "piano", "pillow",
	"pirate", "planet", "pocket", "puzzle", "rabbit", "river",
	"rocket", "saddle", "shadow", "shovel", "spider", "sponge",
	"statue", "sunset", "thunder", "ticket", "tunnel", "turtle",
	"umbrella", "valley", "violin", "volcano", "wagon", "whistle",
	"window", "winter", "wizard", "zebra",
}

// PickTargetWord selects a random target word for a new match.
func PickTargetWord() string {
	return wordCorpus[rand.Intn(len(wordCorpus))]
}
