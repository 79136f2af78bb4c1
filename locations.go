/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// The location catalog is a read-only ordered list consumed by the room
// manager when dealing. Everyone but the spy receives the round's location.
var gameLocations = []string{
	"Airplane",
	"Amusement Park",
	"Art Museum",
	"Bank",
	"Beach",
	"Candy Factory",
	"Casino",
	"Cathedral",
	"Cemetery",
	"Circus Tent",
	"Coal Mine",
	"Corporate Party",
	"Cruise Ship",
	"Day Spa",
	"Embassy",
	"Gas Station",
	"Harbor Docks",
	"Hospital",
	"Hotel",
	"Jail",
	"Jazz Club",
	"Library",
	"Military Base",
	"Movie Studio",
	"Night Club",
	"Ocean Liner",
	"Passenger Train",
	"Pirate Ship",
	"Polar Station",
	"Police Station",
	"Race Track",
	"Restaurant",
	"Rock Concert",
	"School",
	"Service Station",
	"Space Station",
	"Submarine",
	"Supermarket",
	"Theater",
	"University",
	"Vineyard",
	"Wedding",
	"Zoo",
}
