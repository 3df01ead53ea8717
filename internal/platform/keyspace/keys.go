// Package keyspace defines the key families of the clinical KV
// namespace and the codec for pagination cursors. Every key is built
// from a caller-supplied clinic scope, so a repository physically
// cannot address another tenant's partition.
//
// Key families:
//
//	CLINIC#{clinicId}                         METADATA        clinic record
//	CLINIC#{clinicId}                         PATIENT#{pid}   patient index record
//	CLINIC#{clinicId}#PATIENT#{patientId}     METADATA        patient record
//	CLINIC#{clinicId}#PATIENT#{patientId}     NOTE#{date}#{noteId}
//	RATELIMIT#{policy}#{identifier}           WINDOW#{start}  limiter counter
//
// Note sort keys embed the study date as YYYY-MM-DD so lexicographic
// order equals chronological order. No domain entity may ever produce a
// sort key equal to METADATA or colliding with the NOTE# prefix.
package keyspace

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	sep = "#"

	clinicTag    = "CLINIC"
	patientTag   = "PATIENT"
	noteTag      = "NOTE"
	rateLimitTag = "RATELIMIT"
	windowTag    = "WINDOW"

	// MetadataSort is the fixed sort key for clinic and patient records.
	MetadataSort = "METADATA"

	// NotePrefix bounds the note family within a patient partition.
	NotePrefix = noteTag + sep

	// PatientPrefix bounds the patient index family within a clinic
	// partition.
	PatientPrefix = patientTag + sep
)

// MalformedKeyError reports a key that does not match its family's
// structure. Parsing is a hard contract: wrong token count or wrong
// literal segment fails, never best-effort.
type MalformedKeyError struct {
	Key string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %q", e.Key)
}

// ClinicPartition returns the partition key for a clinic's own records
// and its patient index.
func ClinicPartition(clinicID string) string {
	return clinicTag + sep + clinicID
}

// PatientPartition returns the partition key holding one patient's
// record and all of their notes.
func PatientPartition(clinicID, patientID string) string {
	return clinicTag + sep + clinicID + sep + patientTag + sep + patientID
}

// NoteSort returns the sort key for a note. studyDate must already be
// in YYYY-MM-DD form.
func NoteSort(studyDate, noteID string) string {
	return noteTag + sep + studyDate + sep + noteID
}

// PatientSort returns the sort key of a patient's index record within
// the clinic partition.
func PatientSort(patientID string) string {
	return patientTag + sep + patientID
}

// RateLimitPartition returns the partition for one policy/identifier
// counter series. Disjoint from every clinical family.
func RateLimitPartition(policy, identifier string) string {
	return rateLimitTag + sep + policy + sep + identifier
}

// WindowSort returns the sort key of a fixed-window counter record.
func WindowSort(windowStart int64) string {
	return windowTag + sep + strconv.FormatInt(windowStart, 10)
}

// NoteDateFloor returns the lowest possible note sort key for a study
// date, for inclusive lower range bounds.
func NoteDateFloor(studyDate string) string {
	return noteTag + sep + studyDate
}

// NoteDateCeil returns a sort key past every note of a study date, for
// inclusive upper range bounds. '~' sorts after every character a note
// id can contain.
func NoteDateCeil(studyDate string) string {
	return noteTag + sep + studyDate + sep + "~"
}

// ParseClinicPartition inverts ClinicPartition.
func ParseClinicPartition(pk string) (clinicID string, err error) {
	parts := strings.Split(pk, sep)
	if len(parts) != 2 || parts[0] != clinicTag || parts[1] == "" {
		return "", &MalformedKeyError{Key: pk}
	}
	return parts[1], nil
}

// ParsePatientPartition inverts PatientPartition.
func ParsePatientPartition(pk string) (clinicID, patientID string, err error) {
	parts := strings.Split(pk, sep)
	if len(parts) != 4 || parts[0] != clinicTag || parts[2] != patientTag ||
		parts[1] == "" || parts[3] == "" {
		return "", "", &MalformedKeyError{Key: pk}
	}
	return parts[1], parts[3], nil
}

// ParseNoteSort inverts NoteSort.
func ParseNoteSort(sk string) (studyDate, noteID string, err error) {
	parts := strings.Split(sk, sep)
	if len(parts) != 3 || parts[0] != noteTag || parts[1] == "" || parts[2] == "" {
		return "", "", &MalformedKeyError{Key: sk}
	}
	return parts[1], parts[2], nil
}

// ParsePatientSort inverts PatientSort.
func ParsePatientSort(sk string) (patientID string, err error) {
	parts := strings.Split(sk, sep)
	if len(parts) != 2 || parts[0] != patientTag || parts[1] == "" {
		return "", &MalformedKeyError{Key: sk}
	}
	return parts[1], nil
}
