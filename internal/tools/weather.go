package tools

import (
	"context"
	"math/rand/v2"
)

const (
	minTemperatureF = 32
	maxTemperatureF = 90
)

var weatherDescriptions = []string{"sunny", "cloudy", "rainy", "snowy"}

// Weather reports synthetic conditions for a location. It does not call any
// weather service.
type Weather struct {
	intN func(n int) int
}

func NewWeather() *Weather {
	return &Weather{intN: rand.IntN}
}

func (w *Weather) Name() string { return "weather" }

func (w *Weather) Description() string {
	return "Get the current weather for a location"
}

func (w *Weather) Parameters() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]Property{
			"location": {Type: "string", Description: "The location to get the weather for"},
		},
		Required: []string{"location"},
	}
}

func (w *Weather) Execute(ctx context.Context, args map[string]any) map[string]any {
	location, _ := args["location"].(string)
	return map[string]any{
		"location":    location,
		"temperature": minTemperatureF + w.intN(maxTemperatureF-minTemperatureF+1),
		"description": weatherDescriptions[w.intN(len(weatherDescriptions))],
	}
}
