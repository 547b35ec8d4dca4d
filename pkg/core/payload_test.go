package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPayloadClone_IsDeep(t *testing.T) {
	orig := Payload{
		Item:       ItemTippedArrow,
		Effects:    []Effect{{ID: "minecraft:instant_damage", Amplifier: 1, Duration: time.Second}},
		Attributes: map[string]string{"potion": "strong_harming"},
	}

	cloned := orig.Clone()
	cloned.Effects[0].Amplifier = 5
	cloned.Attributes["potion"] = "healing"

	assert.Equal(t, 1, orig.Effects[0].Amplifier)
	assert.Equal(t, "strong_harming", orig.Attributes["potion"])
	assert.Equal(t, orig.Item, cloned.Item)
}

func TestPayloadClone_NilCollectionsStayNil(t *testing.T) {
	cloned := Payload{Item: ItemLingeringPotion}.Clone()
	assert.Nil(t, cloned.Effects)
	assert.Nil(t, cloned.Attributes)
}

func TestDefaultClassifier(t *testing.T) {
	harming := []Effect{{ID: "minecraft:instant_damage"}}

	tests := []struct {
		name    string
		payload Payload
		want    bool
	}{
		{"lingering potion", Payload{Item: ItemLingeringPotion}, true},
		{"tipped arrow with effects", Payload{Item: ItemTippedArrow, Effects: harming}, true},
		{"tipped arrow without effects", Payload{Item: ItemTippedArrow}, false},
		{"plain arrow", Payload{Item: "minecraft:arrow", Effects: harming}, false},
		{"spectral arrow", Payload{Item: "minecraft:spectral_arrow"}, false},
		{"case insensitive", Payload{Item: "MINECRAFT:LINGERING_POTION"}, true},
		{"empty", Payload{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassifier(tt.payload))
		})
	}
}

func TestVec3String(t *testing.T) {
	assert.Equal(t, "1.5,64,-3", Vec3{X: 1.5, Y: 64, Z: -3}.String())
	assert.True(t, Vec3{}.IsZero())
}
