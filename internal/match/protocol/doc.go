// Package protocol defines the line-delimited JSON messages exchanged between
// the match harness and player programs.
//
// Every message is one JSON object on one line. Harness-originated messages
// carry a "type" discriminant (game_start, your_turn, game_over). Player
// replies are untagged: {"move": ...} answers a move request and
// {"status": "ready"} announces a freshly launched player. Decoding is strict:
// an unknown discriminant, a missing required field, or an unexpected field on
// a player reply is a protocol error rather than a best-effort parse.
package protocol
