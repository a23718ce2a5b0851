package util

import (
	"github.com/prebid/prebid-server-admaru/util/randomutil"
)

// LogMsg is a printf-style log sink such as glog.Warningf.
type LogMsg func(string, ...interface{})

// LogRandomSample will log a random sample of the messages it is sent, based on the chance to log
// chance = 1.0 => always log,
// chance = 0.0 => never log
func LogRandomSample(msg string, logger LogMsg, chance float32) {
	logRandomSampleImpl(msg, logger, chance, randomutil.RandomNumberGenerator{})
}

func logRandomSampleImpl(msg string, logger LogMsg, chance float32, randGenerator randomutil.RandomGenerator) {
	if chance < 1.0 && chance <= randGenerator.GenerateFloat32() {
		return
	}
	logger("%s", msg)
}
