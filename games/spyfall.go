package games

// Players join a coded room; the first player to join as host creates it
// The host starts the round once at least three players are present
// One player is secretly dealt the "spy" card; everyone else gets the same secret location
// Players take turns asking each other questions about the location
// The spy tries to blend in and work out the location; everyone else tries to spot the spy
// Tapping your card flips it face-up, visible to you only in the UI, but announced to the room
// The host can re-deal at any point for another round without anyone leaving

// Display formats:
// A face-down card per player that flips on tap
// The player list with host and "revealed" markers

// Implementation details:
// - Use websockets to push the full room state to every member after each change
// - Identify connections by an ephemeral server-assigned ID; no accounts
// - Clients render their own card, so hiding the spy from the UI is advisory only

// How to play
// - Share the room link or QR code; friends join with a display name
// - Names must be unique within a room (case-insensitive)
// - If the host leaves, the longest-joined remaining player becomes host
// - Rooms are swept a fixed time after creation, active or not
