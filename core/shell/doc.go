// Package shell turns a line of shell input into a command tree.
//
// The overall flow follows
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
// loosely:
//
/**
1. The shell reads its input from a line source (an interactive editor, a
script file, or the -c option).

2. The shell breaks the input into tokens: words and operators; see Tokenize.
Quoting and escaping are resolved here, but each word remembers which of its
parts were quoted so later stages can honor them.

3. The shell parses the tokens into simple commands, pipelines and lists; see
Parse.

4. The shell performs expansions on each word, resulting in a list of fields
to be treated as a command and arguments; see package expand.

5. The shell performs redirection and removes redirection operators and their
operands from the parameter list.

6. The shell executes a builtin or an executable file.

7. The shell optionally waits for the command to complete and collects the exit
status.
**/
package shell
