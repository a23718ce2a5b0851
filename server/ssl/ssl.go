package ssl

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/golang/glog"
)

// GetRootCAPool returns the system root certificates, or an empty pool when the
// platform does not expose them.
func GetRootCAPool() *x509.CertPool {
	certPool, err := x509.SystemCertPool()
	if err != nil || certPool == nil {
		glog.Warningf("Could not load the system root certificates, starting from an empty pool: %v", err)
		return x509.NewCertPool()
	}
	return certPool
}

// AppendPEMFileToRootCAPool adds the certificates found in pemFileName to certPool.
// A nil certPool is replaced by a new one.
func AppendPEMFileToRootCAPool(certPool *x509.CertPool, pemFileName string) (*x509.CertPool, error) {
	if certPool == nil {
		certPool = x509.NewCertPool()
	}
	if pemFileName == "" {
		return certPool, nil
	}

	pemCerts, err := os.ReadFile(pemFileName)
	if err != nil {
		return certPool, fmt.Errorf("failed to read file %s: %v", pemFileName, err)
	}
	if !certPool.AppendCertsFromPEM(pemCerts) {
		return certPool, fmt.Errorf("no certificates could be parsed from file %s", pemFileName)
	}
	return certPool, nil
}
