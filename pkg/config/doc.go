/*
Package config loads Mirror's configuration from the environment.

Two sets of service-account credentials are assembled from PRIMARY_* and
STANDBY_* variables (type, projectId, privateKeyId, privateKey with \n
escapes restored, clientEmail, clientId, authUri, tokenUri, cert URLs,
universeDomain). Tunables: PORT, RUN_INTERVAL_MINUTES,
HEALTH_PROBE_INTERVAL_SECONDS, BATCH_SIZE, MAX_RETRY_ATTEMPTS, DATA_DIR,
LOG_LEVEL, LOG_JSON, and the AUTH_HASH_* password-hash parameters.

An optional YAML file can overlay the tunables (LoadWithFile); credentials
always come from the environment and are read once at process start.
*/
package config
