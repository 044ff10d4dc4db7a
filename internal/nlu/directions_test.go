package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDirections(t *testing.T) {
	cases := []struct {
		text string
		want NavigationRequest
		ok   bool
	}{
		{
			text: "Hey KITT, navigate from Central Park to Times Square",
			want: NavigationRequest{Origin: "central park", Destination: "times square"},
			ok:   true,
		},
		{
			text: "directions to the airport",
			want: NavigationRequest{Origin: CurrentLocation, Destination: "the airport"},
			ok:   true,
		},
		{
			text: "Route from 1600 Pennsylvania Ave to Times Square.",
			want: NavigationRequest{Origin: "1600 pennsylvania ave", Destination: "times square"},
			ok:   true,
		},
		{
			text: "navigate to the office then route to home",
			want: NavigationRequest{Origin: CurrentLocation, Destination: "the office then route to home"},
			ok:   true,
		},
		{text: "how's the weather", ok: false},
		{text: "navigate", ok: false},
		{text: "", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := ParseDirections(tc.text)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSpeechy(t *testing.T) {
	assert.Equal(t, "well —  what now", Speechy("well, what now"))
	assert.Equal(t, "no commas", Speechy("no commas"))
}
