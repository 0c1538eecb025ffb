package travel

import (
	"fmt"
	"math"
	"sort"
)

// JourneyStage is one leg of a multi-modal journey.
type JourneyStage struct {
	Stage       string  `json:"stage"`
	Mode        string  `json:"mode"`
	Provider    string  `json:"provider,omitempty"`
	Fare        float64 `json:"fare"`
	Duration    int     `json:"duration,omitempty"`
	Description string  `json:"description"`
}

// Journey is a complete origin-to-destination option with its total cost.
type Journey struct {
	JourneyName    string         `json:"journeyName"`
	TotalFare      float64        `json:"totalFare"`
	TotalDuration  int            `json:"totalDuration,omitempty"`
	Stages         []JourneyStage `json:"stages"`
	Recommendation string         `json:"recommendation,omitempty"`
}

// TransportOption is a single-mode fare estimate for a trip.
type TransportOption struct {
	Mode        string  `json:"mode"`
	Provider    string  `json:"provider"`
	Fare        float64 `json:"fare"`
	Currency    string  `json:"currency"`
	Duration    int     `json:"duration,omitempty"`
	Distance    float64 `json:"distance,omitempty"`
	Description string  `json:"description"`
	Details     string  `json:"details,omitempty"`
}

// EstimatedMinutes converts road distance to a rough travel time at city
// traffic speeds, about 20 km/h.
func EstimatedMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm * 3))
}

// PlanJourneys builds the candidate multi-stage journeys for a trip of the
// given road distance, sorted cheapest first.
func PlanJourneys(distanceKm float64) []Journey {
	minutes := EstimatedMinutes(distanceKm)
	var journeys []Journey

	if distanceKm >= 2 && distanceKm <= 30 {
		metroFare := MetroFare(distanceKm, false)
		walkTime := 5
		metroTime := int(math.Round(distanceKm * 2))
		journeys = append(journeys, Journey{
			JourneyName:   "Metro + Walk",
			TotalFare:     metroFare,
			TotalDuration: walkTime + metroTime + walkTime,
			Stages: []JourneyStage{
				{Stage: "Walk to Metro", Mode: "walk", Fare: 0, Duration: walkTime, Description: "Walk to nearest metro station"},
				{Stage: "Metro Ride", Mode: "metro", Provider: "Namma Metro", Fare: metroFare, Duration: metroTime, Description: fmt.Sprintf("%.1fkm metro journey", distanceKm)},
				{Stage: "Walk to Destination", Mode: "walk", Fare: 0, Duration: walkTime, Description: "Walk to final destination"},
			},
			Recommendation: "Eco-friendly and avoids traffic",
		})
	}

	busFare := BusFare(distanceKm, BusOrdinary)
	busTime := int(math.Round(distanceKm * 4))
	journeys = append(journeys, Journey{
		JourneyName:   "Direct Bus",
		TotalFare:     busFare,
		TotalDuration: busTime,
		Stages: []JourneyStage{
			{Stage: "Bus Ride", Mode: "bus", Provider: "BMTC", Fare: busFare, Duration: busTime, Description: fmt.Sprintf("Direct bus for %.1fkm", distanceKm)},
		},
		Recommendation: "Most affordable option",
	})

	uberFare, uberName := RideShareFare(distanceKm, minutes, RideUberGo)
	journeys = append(journeys, Journey{
		JourneyName:   "Direct Uber",
		TotalFare:     uberFare,
		TotalDuration: minutes,
		Stages: []JourneyStage{
			{Stage: "Uber Ride", Mode: "uber", Provider: uberName, Fare: uberFare, Duration: minutes, Description: "Door-to-door service"},
		},
		Recommendation: "Fastest and most convenient",
	})

	olaFare, olaName := RideShareFare(distanceKm, minutes, RideOla)
	journeys = append(journeys, Journey{
		JourneyName:   "Direct Ola",
		TotalFare:     olaFare,
		TotalDuration: minutes,
		Stages: []JourneyStage{
			{Stage: "Ola Ride", Mode: "uber", Provider: olaName, Fare: olaFare, Duration: minutes, Description: "Affordable ride-sharing"},
		},
		Recommendation: "Good alternative to Uber",
	})

	if distanceKm < 10 {
		autoFare, autoName := RideShareFare(distanceKm, minutes, RideRapido)
		journeys = append(journeys, Journey{
			JourneyName:   "Auto Rickshaw",
			TotalFare:     autoFare,
			TotalDuration: minutes,
			Stages: []JourneyStage{
				{Stage: "Auto Ride", Mode: "uber", Provider: autoName, Fare: autoFare, Duration: minutes, Description: "Quick auto ride"},
			},
			Recommendation: "Best for short distances",
		})
	}

	sort.SliceStable(journeys, func(i, j int) bool {
		return journeys[i].TotalFare < journeys[j].TotalFare
	})
	return journeys
}

// CompareModes returns a flat fare comparison across every mode that can
// serve the given distance, sorted cheapest first.
func CompareModes(distanceKm float64) []TransportOption {
	minutes := EstimatedMinutes(distanceKm)
	options := []TransportOption{
		{
			Mode:        "metro",
			Provider:    "Namma Metro (BMRCL)",
			Fare:        MetroFare(distanceKm, false),
			Currency:    "INR",
			Description: fmt.Sprintf("Metro ticket based on %.1fkm distance", distanceKm),
			Details:     "Smart card gives 5% discount. Check station connectivity for your route.",
		},
		{
			Mode:        "bus",
			Provider:    "BMTC Ordinary Bus",
			Fare:        BusFare(distanceKm, BusOrdinary),
			Currency:    "INR",
			Description: fmt.Sprintf("Regular AC/Non-AC bus fare for %.1fkm", distanceKm),
			Details:     "Multiple routes available. Check Namma BMTC app for real-time tracking.",
		},
		{
			Mode:        "bus",
			Provider:    "BMTC Vajra (AC Bus)",
			Fare:        BusFare(distanceKm, BusVajra),
			Currency:    "INR",
			Description: fmt.Sprintf("Premium AC bus service for %.1fkm", distanceKm),
			Details:     "More comfortable than ordinary buses with better seating.",
		},
	}

	uberFare, uberName := RideShareFare(distanceKm, minutes, RideUberGo)
	options = append(options, TransportOption{
		Mode:        "uber",
		Provider:    uberName,
		Fare:        uberFare,
		Currency:    "INR",
		Duration:    minutes,
		Distance:    distanceKm,
		Description: uberName + " - door to door service",
		Details:     fmt.Sprintf("Estimated %d mins. Price may vary with surge pricing.", minutes),
	})

	olaFare, olaName := RideShareFare(distanceKm, minutes, RideOla)
	options = append(options, TransportOption{
		Mode:        "uber",
		Provider:    olaName,
		Fare:        olaFare,
		Currency:    "INR",
		Duration:    minutes,
		Distance:    distanceKm,
		Description: olaName + " - affordable ride",
		Details:     fmt.Sprintf("Estimated %d mins. Price may vary with demand.", minutes),
	})

	if distanceKm < 10 {
		autoFare, autoName := RideShareFare(distanceKm, minutes, RideRapido)
		options = append(options, TransportOption{
			Mode:        "uber",
			Provider:    autoName,
			Fare:        autoFare,
			Currency:    "INR",
			Duration:    minutes,
			Distance:    distanceKm,
			Description: autoName + " - quick auto ride",
			Details:     fmt.Sprintf("Estimated %d mins. Good for short trips.", minutes),
		})
	}

	if distanceKm > 30 {
		options = append(options, TransportOption{
			Mode:        "train",
			Provider:    "Indian Railways (Sleeper)",
			Fare:        TrainFare(distanceKm, TrainSleeper),
			Currency:    "INR",
			Description: fmt.Sprintf("Train journey for %.1fkm", distanceKm),
			Details:     "Check IRCTC for actual train availability and schedules.",
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Fare < options[j].Fare
	})
	return options
}
