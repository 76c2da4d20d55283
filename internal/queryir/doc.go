// Package queryir provides the token model for inline query templates.
//
// A template is the body of a query function: SQL keywords and identifiers,
// punctuation, nested bracket groups and parameter markers. It is kept as a
// self-describing token tree so the template compiler does not depend on how
// the template was written down:
//
//	[template text] → Lex → [Token tree] → querysql.Compile → [$N query]
//
// TOKENS:
//
//   - Ident: identifier-shaped atom (SELECT, pets, name)
//   - Literal: string, quoted identifier or number, kept verbatim
//   - Punct: one punctuation character; runs are joined by the compiler
//   - Group: tokens between (), {} or []; DelimNone is representable but
//     rejected by the compiler
//   - Marker: a parameter reference already resolved by a front end
//
// Token is a sealed interface using the marker method pattern, so consumers
// can switch over the five token kinds exhaustively.
//
// Every token carries a Position (participle's lexer.Position) used for
// diagnostics. Lex builds the tree with an explicit stack of open groups and
// reports unbalanced brackets with the position of the offending bracket.
package queryir
