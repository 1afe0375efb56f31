// Package dashboard keeps one chat message per generator list up to date and
// alerts when a generator runs out of fuel.
//
// A refresh cycle visits lists in name order with a stagger between them.
// A rate-limit signal from the platform stops the cycle and starts a cooldown;
// cycles that begin inside the cooldown do nothing. Cycles never overlap.
package dashboard
