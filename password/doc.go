// Package password hashes and verifies account passwords with Argon2id.
//
// Stored values use the PHC string layout with unpadded base64:
//
//	$argon2id$v=19$m=<memory KB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// Verification takes its cost from the stored value, so hashes made under
// an older [Config] keep working; [Argon2.NeedsUpgrade] tells the caller
// when one should be rewritten. [Argon2.Burn] gives unknown identities the
// same cost as a wrong password.
//
// The package never sees the credential store and never logs.
package password
