// Package keyboards builds every keyboard the bot shows. Reply
// keyboards are static layouts routed by button label; inline keyboards
// carry either signed codec payloads (anything parameterised or
// privileged) or plain navigation markers (back buttons, which reveal
// and mutate nothing). Payloads are bound to the user the keyboard was
// built for, so a forwarded keyboard is useless to anyone else.
package keyboards
