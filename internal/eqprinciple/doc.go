// Package eqprinciple builds nondet calls from operations according to an
// equivalence principle: the rule a validator uses to accept a leader result.
//
//	StrictEq               validator re-runs the operation in a sandbox and
//	                       compares returned values structurally
//	PromptComparative      both sides run the operation; the judgment oracle
//	                       compares the two answers under a free-text principle
//	PromptNonComparative   the leader transforms its input with the oracle;
//	                       the validator asks the oracle whether the leader
//	                       output fits its own input
//	Custom / Check         user-supplied validator or registered check program
//
// When the operation fails, no principle compares values or consults the oracle:
// the failure propagates out of the vote and is compared with the leader
// outcome by kind.
package eqprinciple
