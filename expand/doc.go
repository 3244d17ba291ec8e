// Package expand derives a target-sized, deduplicated corpus of labeled
// test events from a small set of seed events.
//
// The engine never evaluates rules. It works from the compiled field
// profiles alone, applying mutation operators whose expected effect on the
// match outcome is known by construction for label-preserving operators and
// asserted heuristically for label-flipping ones. The validator downstream
// re-evaluates every case and filters out any heuristic that turned out
// wrong, so an optimistic expansion here costs nothing but a diagnostic.
//
// Given the same seeds, profiles, and random seed, expansion is fully
// deterministic.
package expand
