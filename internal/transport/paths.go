package transport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Bucket returns the directory range holding the given bill number. Bills
// 1-99 share the first bucket; every later bucket spans exactly 100 numbers
// ([100,199], [200,299], ...). Adjacent buckets never overlap.
func Bucket(number int) (lo, hi int) {
	if number < 100 {
		return 1, 99
	}
	lo = (number / 100) * 100
	return lo, lo + 99
}

// chamberDir maps a bill type to its chamber directory at the source.
func chamberDir(billType string) string {
	if strings.HasPrefix(billType, "S") {
		return "senate_bills"
	}
	return "house_bills"
}

// bucketDir formats a bucket directory name, e.g. "HB00100_HB00199".
func bucketDir(billType string, lo, hi int) string {
	return fmt.Sprintf("%s%05d_%s%05d", billType, lo, billType, hi)
}

// historyDir returns the remote directory holding history files for a bucket.
func historyDir(session, billType string, number int) string {
	lo, hi := Bucket(number)
	return fmt.Sprintf("/bills/%s/billhistory/%s/%s", session, chamberDir(billType), bucketDir(billType, lo, hi))
}

// HistoryPath returns the full remote path of one bill-history document,
// e.g. "/bills/89R/billhistory/house_bills/HB00001_HB00099/HB 1.xml".
func HistoryPath(session, billType string, number int) string {
	return fmt.Sprintf("%s/%s %d.xml", historyDir(session, billType, number), billType, number)
}

// chamberPath returns the remote directory listing all buckets for a type.
func chamberPath(session, billType string) string {
	return fmt.Sprintf("/bills/%s/billhistory/%s", session, chamberDir(billType))
}

var bucketDirPattern = regexp.MustCompile(`^([A-Z]{2,3})\d{5}_[A-Z]{2,3}\d{5}$`)

// matchBucketDir reports whether name is a bucket directory for billType.
func matchBucketDir(name, billType string) bool {
	m := bucketDirPattern.FindStringSubmatch(name)
	return m != nil && m[1] == billType
}

var historyFilePattern = regexp.MustCompile(`^([A-Z]{2,3}) ?(\d+)\.xml$`)

// parseHistoryFilename extracts the bill number from a history filename like
// "HB 123.xml". Returns false for filenames of other types or junk entries.
func parseHistoryFilename(name, billType string) (int, bool) {
	m := historyFilePattern.FindStringSubmatch(strings.ToUpper(name))
	if m == nil || m[1] != billType {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
