package common

// AppDirName is the per-user dot directory that holds the key file, the
// transfer ledger database and the container staging area.
const AppDirName = ".securedrive"
