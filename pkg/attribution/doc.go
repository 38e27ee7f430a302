// Package attribution merges speech-recognition fragments with diarization turns
// into a role-labeled transcript.
//
// The flow is strictly downstream:
//
//	fragments + turns -> Aligner.Align -> []AttributedRecord
//	                  -> RolePolicy.Designate (reads only)
//	                  -> Relabel -> []LabeledRecord
//	                  -> Fuse -> []FinalRecord
//
// Everything here is synchronous and free of shared state; Pipeline wires the
// steps together for one audio file.
package attribution
