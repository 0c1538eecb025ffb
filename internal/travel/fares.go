package travel

import "math"

// Fare tables approximate Bengaluru city transit pricing. Values are INR.

type BusService string

const (
	BusOrdinary BusService = "ordinary"
	BusVajra    BusService = "vajra"
)

type TrainClass string

const (
	TrainSleeper TrainClass = "sleeper"
	Train3AC     TrainClass = "3ac"
	Train2AC     TrainClass = "2ac"
)

type RideService string

const (
	RideUberGo RideService = "ubergo"
	RideOla    RideService = "ola"
	RideRapido RideService = "rapido"
)

// MetroFare returns the slab fare for a metro trip. Smart-card holders get a
// 5% discount.
func MetroFare(distanceKm float64, smartCard bool) float64 {
	var base float64
	switch {
	case distanceKm <= 2:
		base = 10
	case distanceKm <= 4:
		base = 15
	case distanceKm <= 6:
		base = 20
	case distanceKm <= 10:
		base = 25
	case distanceKm <= 15:
		base = 30
	case distanceKm <= 25:
		base = 40
	default:
		base = 50
	}
	if smartCard {
		return math.Round(base*0.95*100) / 100
	}
	return base
}

func BusFare(distanceKm float64, service BusService) float64 {
	if service == BusVajra {
		switch {
		case distanceKm <= 10:
			return 30
		case distanceKm <= 20:
			return 50
		default:
			return 70
		}
	}
	switch {
	case distanceKm <= 5:
		return 10
	case distanceKm <= 10:
		return 15
	case distanceKm <= 20:
		return 20
	default:
		return 25
	}
}

func TrainFare(distanceKm float64, class TrainClass) float64 {
	var perKm, reservation float64
	switch class {
	case Train3AC:
		perKm, reservation = 1.2, 40
	case Train2AC:
		perKm, reservation = 2.0, 50
	default:
		perKm, reservation = 0.5, 20
	}
	return math.Round((distanceKm*perKm + reservation) * 1.05)
}

type rideRate struct {
	base, perKm, perMin float64
	name                string
}

var rideRates = map[RideService]rideRate{
	RideUberGo: {base: 55, perKm: 12, perMin: 1.5, name: "UberGo"},
	RideOla:    {base: 50, perKm: 10, perMin: 1, name: "Ola Mini"},
	RideRapido: {base: 46, perKm: 15, perMin: 0, name: "Rapido Auto"},
}

// RideShareFare estimates a door-to-door fare including 5% GST and returns
// the product name for display.
func RideShareFare(distanceKm float64, estimatedMinutes int, service RideService) (fare float64, productName string) {
	rate, ok := rideRates[service]
	if !ok {
		rate = rideRates[RideUberGo]
	}
	subtotal := rate.base + distanceKm*rate.perKm + float64(estimatedMinutes)*rate.perMin
	return math.Round(subtotal * 1.05), rate.name
}
